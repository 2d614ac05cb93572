package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/MikeMC777/autoparts-orders/internal/metrics"
)

const webhookTimeout = 3 * time.Second

// WebhookPublisher POSTs events as JSON behind a circuit breaker, so a dead
// receiver stops costing a timeout per order operation.
type WebhookPublisher struct {
	client  *resty.Client
	url     string
	breaker *gobreaker.CircuitBreaker
}

func NewWebhookPublisher(url string) *WebhookPublisher {
	const name = "events-webhook"
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(stateValue(to))
			log.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &WebhookPublisher{
		client: resty.New().
			SetTimeout(webhookTimeout).
			SetRetryCount(0),
		url:     url,
		breaker: cb,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, e Event) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		resp, err := p.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Event-Type", e.Type).
			SetBody(e).
			Post(p.url)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		if resp.StatusCode() >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode())
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("webhook circuit open: %w", err)
	}
	return err
}

func (p *WebhookPublisher) State() gobreaker.State {
	return p.breaker.State()
}

func (p *WebhookPublisher) Close() error { return nil }
