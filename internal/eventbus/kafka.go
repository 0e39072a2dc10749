package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
)

// flushInterval bounds how long Emit waits for a partial batch to be sent.
const flushInterval = 10 * time.Millisecond

type kafkaPublisher struct {
	w *kafkaGo.Writer
}

// NewKafkaPublisher returns a publisher backed by one shared writer. The
// topic is chosen per message.
func NewKafkaPublisher(brokers []string) Publisher {
	return &kafkaPublisher{
		w: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.Hash{},
			RequiredAcks:           kafkaGo.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           flushInterval,
			WriteTimeout:           5 * time.Second,
		},
	}
}

func (k *kafkaPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.w.WriteMessages(ctx, kafkaGo.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
}

func (k *kafkaPublisher) Close() error {
	return k.w.Close()
}
