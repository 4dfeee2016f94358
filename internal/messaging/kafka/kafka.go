package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/sondv/storefront/internal/messaging"
)

type kafkaBroker struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafkaGo.Writer
}

// NewKafkaBroker creates a new Kafka publisher and subscriber.
func NewKafkaBroker(brokers []string) (messaging.Publisher, messaging.Subscriber) {
	kb := &kafkaBroker{
		brokers: brokers,
		writers: make(map[string]*kafkaGo.Writer),
	}
	return kb, kb
}

func (k *kafkaBroker) writer(topic string) *kafkaGo.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()
	w, ok := k.writers[topic]
	if !ok {
		w = &kafkaGo.Writer{
			Addr:     kafkaGo.TCP(k.brokers...),
			Topic:    topic,
			Balancer: &kafkaGo.LeastBytes{},
		}
		k.writers[topic] = w
	}
	return w
}

func (k *kafkaBroker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.writer(topic).WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

func (k *kafkaBroker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Consumer shutting down", "topic", topic)
				return
			}
			slog.Error("Error reading message", "topic", topic, "err", err)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			slog.Error("Error handling message", "topic", topic, "err", err)
		}
	}
}
