package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(addr string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(addr),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Send writes the events keyed by session so one session stays in one
// partition. kafka-go writes a batch all or nothing.
func (k *KafkaSink) Send(ctx context.Context, events []Event) (int, error) {
	msgs, err := encodeMessages(events)
	if err != nil {
		return 0, err
	}
	err = k.writer.WriteMessages(ctx, msgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to write %d events to kafka: %w", len(msgs), err)
	}
	return len(msgs), nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func encodeMessages(events []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.Session),
			Value: value,
			Time:  event.Time,
		})
	}
	return msgs, nil
}
