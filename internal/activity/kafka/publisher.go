package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/commonpurse/commonpurse/internal/activity"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

// NewPublisher keys messages by community so one community's activities stay
// ordered within a partition.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
			Async:    true,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, a *treasury.Activity) error {
	data, err := json.Marshal(activity.NewEvent(a))
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.CommunityID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(a.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing activity to kafka: %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
