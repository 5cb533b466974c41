package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"assent/internal/platform/kafka/producer"
)

// KafkaSink publishes audit entries to a Kafka topic. Each entry gets a
// random key; the downstream consumer is expected to be idempotent, so
// re-delivery after a worker restart is harmless.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

// NewKafkaSink creates a sink publishing to the given topic.
func NewKafkaSink(prod *producer.Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = "assent.audit.entries"
	}
	return &KafkaSink{producer: prod, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(uuid.New().String()),
		Value: payload,
		Headers: map[string]string{
			"event_type": entry.EventType,
			"category":   string(entry.Category),
		},
	})
}
