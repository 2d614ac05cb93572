package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"pending":     StatusPending,
		" CONFIRMED ": StatusConfirmed,
		"in-transit":  StatusInTransit,
		"In_Transit":  StatusInTransit,
	}
	for in, want := range cases {
		got, ok := ParseStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseStatus("LOST")
	assert.False(t, ok)
}

func TestDefaultStateMachine_Table(t *testing.T) {
	m := DefaultStateMachine

	assert.Equal(t, []Status{StatusConfirmed, StatusCancelled}, m.Next(StatusPending))
	assert.Equal(t, []Status{StatusProcessing, StatusCancelled}, m.Next(StatusConfirmed))
	assert.Equal(t, []Status{StatusShipped, StatusCancelled}, m.Next(StatusProcessing))
	assert.Equal(t, []Status{StatusInTransit}, m.Next(StatusShipped))
	assert.Equal(t, []Status{StatusDelivered}, m.Next(StatusInTransit))
	assert.Equal(t, []Status{StatusReturned}, m.Next(StatusDelivered))
	assert.Equal(t, []Status{StatusRefunded}, m.Next(StatusReturned))

	assert.True(t, m.IsTerminal(StatusCancelled))
	assert.True(t, m.IsTerminal(StatusRefunded))
	assert.False(t, m.IsTerminal(StatusDelivered))
}

func TestStateMachine_NoSelfLoops(t *testing.T) {
	for _, s := range Statuses {
		assert.False(t, DefaultStateMachine.CanTransition(s, s), s)
	}
	assert.False(t, DefaultStateMachine.CanTransition(StatusPending, StatusDelivered))
	assert.False(t, DefaultStateMachine.CanTransition(StatusShipped, StatusCancelled))
}

func TestNewStateMachine_CopiesInput(t *testing.T) {
	table := map[Status][]Status{StatusPending: {StatusConfirmed}}
	m := NewStateMachine(table)

	table[StatusPending] = append(table[StatusPending], StatusDelivered)
	table[StatusDelivered] = []Status{StatusPending}

	assert.False(t, m.CanTransition(StatusPending, StatusDelivered))
	assert.False(t, m.CanTransition(StatusDelivered, StatusPending))
}
