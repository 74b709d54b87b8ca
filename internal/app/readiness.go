package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Probe is one dependency the service waits for before serving.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type ReadinessWaiter struct {
	probes   []Probe
	interval time.Duration
}

// NewReadinessWaiter builds probes for the optional backing services. A nil
// mongo client or an empty broker list means that dependency is not used.
func NewReadinessWaiter(mongoClient *mongo.Client, brokers []string, topic string) *ReadinessWaiter {
	w := &ReadinessWaiter{interval: 2 * time.Second}
	if mongoClient != nil {
		w.probes = append(w.probes, Probe{
			Name: "MongoDB",
			Check: func(ctx context.Context) error {
				return mongoClient.Ping(ctx, readpref.Primary())
			},
		})
	}
	if len(brokers) > 0 {
		w.probes = append(w.probes, Probe{
			Name: "Kafka",
			Check: func(ctx context.Context) error {
				return checkKafka(brokers, topic)
			},
		})
	}
	return w
}

func (w *ReadinessWaiter) Probes() []Probe {
	return w.probes
}

func (w *ReadinessWaiter) WaitForDependencies(ctx context.Context) error {
	for _, p := range w.probes {
		if err := w.waitFor(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (w *ReadinessWaiter) waitFor(ctx context.Context, p Probe) error {
	slog.Info("Waiting for dependency", "name", p.Name)
	// No overall timeout: slow dependencies in a dev stack should not crash the service.
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		err := p.Check(ctx)
		if err == nil {
			slog.Info("Dependency is ready", "name", p.Name)
			return nil
		}
		slog.Warn("Dependency not ready yet", "name", p.Name, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func checkKafka(brokers []string, topic string) error {
	for _, broker := range brokers {
		conn, err := net.DialTimeout("tcp", broker, 2*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to broker %s: %w", broker, err)
		}
		_ = conn.Close()
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return fmt.Errorf("failed to read partitions for topic %s: %w", topic, err)
	}
	if len(partitions) == 0 {
		return fmt.Errorf("topic %s has no partitions", topic)
	}
	return nil
}
