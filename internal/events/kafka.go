package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publish runs on the request path: flush each event without waiting for a batch.
const (
	kafkaBatchSize    = 1
	kafkaBatchTimeout = 10 * time.Millisecond
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              kafkaBatchSize,
		BatchTimeout:           kafkaBatchTimeout,
		WriteTimeout:           3 * time.Second,
		AllowAutoTopicCreation: true,
	}}
}

// toMessage keys by order id so every event of one order lands on the same partition.
func toMessage(e Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.OrderID),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
