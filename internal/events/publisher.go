// Package events delivers order lifecycle notifications to downstream systems.
// Publishing is best effort: the order state is already committed when an
// event is sent.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	OrderCreated          = "order.created"
	OrderStatusChanged    = "order.status_changed"
	OrderItemCancelled    = "order.item_cancelled"
	OrderDeliveryAssigned = "order.delivery_assigned"
)

type Event struct {
	Type        string         `json:"type"`
	OrderID     string         `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	Status      string         `json:"status"`
	ActorID     string         `json:"actor_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Data        map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
