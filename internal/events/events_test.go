package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() Event {
	return Event{
		Type:        OrderStatusChanged,
		OrderID:     "6f1c1f1e-8a1f-4d5e-9a55-1d3c2a4b5c6d",
		OrderNumber: "ORD-ABC-1234",
		Status:      "CONFIRMED",
		OccurredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestToMessage_KeyedByOrder(t *testing.T) {
	msg, err := toMessage(sampleEvent())
	require.NoError(t, err)

	assert.Equal(t, "6f1c1f1e-8a1f-4d5e-9a55-1d3c2a4b5c6d", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, OrderStatusChanged, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "ORD-ABC-1234", got.OrderNumber)
}

func TestNewKafkaPublisher_FlushesEachEvent(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "orders.events")
	defer p.Close()

	w := p.writer
	assert.Equal(t, "orders.events", w.Topic)
	assert.Equal(t, 1, w.BatchSize)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.Positive(t, w.BatchTimeout)
	assert.False(t, w.Async)
}

func TestWebhookPublisher_Delivers(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, OrderStatusChanged, r.Header.Get("X-Event-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL)
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "CONFIRMED", got.Status)
}

func TestWebhookPublisher_OpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL)
	for i := 0; i < 5; i++ {
		assert.Error(t, p.Publish(context.Background(), sampleEvent()))
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &Recorder{}
	bad := &Recorder{Err: errors.New("down")}

	err := Multi{ok, bad}.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, []string{OrderStatusChanged}, ok.Types())
}
