// Package factory provides dependency injection constructors for infrastructure components.
package factory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/querycache"
	"github.com/NewsDiscover/internal/infra/queue"
	"github.com/NewsDiscover/internal/infra/repository"
	"github.com/NewsDiscover/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

// NewMongoClient creates a MongoDB client with lifecycle management. It
// returns a nil client when MongoDB is not configured.
func NewMongoClient(lc fx.Lifecycle, cfg *config.Config) (*mongo.Client, error) {
	if !cfg.MongoEnabled() {
		slog.Info("MONGO_URI not set, category URIs are kept in memory only")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})

	return client, nil
}

// NewCategoryStore creates the MongoDB category URI store, or nil without a client.
func NewCategoryStore(client *mongo.Client, cfg *config.Config) (domain.CategoryURIStore, error) {
	if client == nil {
		return nil, nil
	}
	if cfg.MongoDBName == "" {
		return nil, errors.New("mongo database name not configured")
	}
	if cfg.MongoColl == "" {
		return nil, errors.New("mongo collection name not configured")
	}
	return repository.NewMongoCategoryStore(client, cfg.MongoDBName, cfg.MongoColl)
}

// NewEventProducer creates the Kafka search event producer, or a no-op one
// when no brokers are configured.
func NewEventProducer(cfg *config.Config, lc fx.Lifecycle) (domain.EventProducer, error) {
	if !cfg.KafkaEnabled() {
		slog.Info("KAFKA_BROKERS not set, search events are not published")
		return queue.NoopProducer{}, nil
	}
	if cfg.KafkaTopic == "" {
		return nil, errors.New("kafka topic not configured")
	}

	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})
	return producer, nil
}

// NewQueryCache creates the process-wide query cache and runs its janitor
// for the lifetime of the app.
func NewQueryCache(cfg *config.Config, lc fx.Lifecycle) *querycache.Cache {
	cache := querycache.New(
		querycache.WithRetention(cfg.CacheRetention),
		querycache.WithMaxRetries(cfg.CacheMaxRetries),
		querycache.WithRetryBackoff(cfg.CacheRetryBackoff),
	)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			cache.Start(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			cache.Close()
			return nil
		},
	})
	return cache
}
