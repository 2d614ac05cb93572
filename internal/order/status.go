package order

import (
	"strings"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusInTransit  Status = "IN_TRANSIT"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
	StatusReturned   Status = "RETURNED"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusInTransit,
	StatusDelivered, StatusCancelled, StatusRefunded, StatusReturned,
}

// ParseStatus accepts any casing and "in-transit" style separators.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return st, false
}

// StateMachine is an immutable transition graph. Safe for concurrent use.
type StateMachine struct {
	next map[Status]map[Status]struct{}
}

func NewStateMachine(table map[Status][]Status) *StateMachine {
	m := &StateMachine{next: make(map[Status]map[Status]struct{}, len(table))}
	for from, tos := range table {
		set := make(map[Status]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		m.next[from] = set
	}
	return m
}

func (m *StateMachine) CanTransition(from, to Status) bool {
	_, ok := m.next[from][to]
	return ok
}

// Next returns the statuses reachable from s in lifecycle order.
func (m *StateMachine) Next(s Status) []Status {
	var out []Status
	for _, st := range Statuses {
		if m.CanTransition(s, st) {
			out = append(out, st)
		}
	}
	return out
}

func (m *StateMachine) IsTerminal(s Status) bool {
	return len(m.next[s]) == 0
}

var DefaultStateMachine = NewStateMachine(map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusInTransit},
	StatusInTransit:  {StatusDelivered},
	StatusDelivered:  {StatusReturned},
	StatusCancelled:  {},
	StatusRefunded:   {},
	StatusReturned:   {StatusRefunded},
})
