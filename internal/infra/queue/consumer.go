package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/NewsDiscover/internal/domain"
	"github.com/segmentio/kafka-go"
)

type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewKafkaConsumer reads search events. An empty groupID reads the topic
// from the latest offset without committing.
func NewKafkaConsumer(brokers []string, topic string, groupID string) *KafkaConsumer {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	}
	if groupID == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	r := kafka.NewReader(cfg)
	slog.Info("Kafka Consumer initialized", "brokers", brokers, "topic", topic, "group", groupID)
	return &KafkaConsumer{reader: r}
}

type MessageHandler func(ctx context.Context, event domain.SearchEvent) error

// Start delivers events to handler until ctx is done. Undecodable messages
// and handler failures are logged and skipped.
func (c *KafkaConsumer) Start(ctx context.Context, handler MessageHandler) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			slog.Error("Error reading kafka message", "error", err)
			return err
		}

		event, err := DecodeSearchEvent(m.Value)
		if err != nil {
			slog.Error("Error unmarshaling search event", "offset", m.Offset, "error", err)
			continue
		}

		if err := handler(ctx, event); err != nil {
			slog.Error("Error handling search event", "session", event.SessionID, "error", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func DecodeSearchEvent(payload []byte) (domain.SearchEvent, error) {
	var event domain.SearchEvent
	err := json.Unmarshal(payload, &event)
	return event, err
}
