package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/metrics"
	"github.com/segmentio/kafka-go"
)

// SearchEventType is set as the event_type header of every published message.
const SearchEventType = "search.settled"

type KafkaProducer struct {
	writer *kafka.Writer
}

var _ domain.EventProducer = (*KafkaProducer)(nil)

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Same key, same partition: a session's events stay ordered
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	slog.Info("Kafka Producer initialized", "brokers", brokers, "topic", topic)
	return &KafkaProducer{writer: w}
}

// PublishSearch writes a settled search, keyed by session.
func (p *KafkaProducer) PublishSearch(ctx context.Context, event domain.SearchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(SearchEventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.SearchEventsPublished.WithLabelValues("error").Inc()
		slog.Error("Failed to write to kafka", "error", err)
		return err
	}

	metrics.SearchEventsPublished.WithLabelValues("success").Inc()
	slog.Debug("Published search event to Kafka", "session", event.SessionID, "keyword", event.Keyword)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// NoopProducer drops events. It is used when no brokers are configured.
type NoopProducer struct{}

var _ domain.EventProducer = NoopProducer{}

func (NoopProducer) PublishSearch(context.Context, domain.SearchEvent) error { return nil }

func (NoopProducer) Close() error { return nil }
