package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NewsDiscover/cmd/server/factory"
	"github.com/NewsDiscover/internal/app"
	"github.com/NewsDiscover/internal/infra/tracing"
	transport "github.com/NewsDiscover/internal/transport/http"
	"github.com/NewsDiscover/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
)

const serviceName = "news-discover"

// infraModule owns the external dependencies. MongoDB and Kafka are
// optional and degrade to in-memory and no-op implementations.
var infraModule = fx.Module("infra",
	fx.Provide(
		factory.NewMongoClient,
		factory.NewCategoryStore,
		factory.NewEventProducer,
		factory.NewQueryCache,
		factory.NewNewsAPI,
	),
	fx.Invoke(setupTracer, waitForReady),
)

var appModule = fx.Module("app",
	fx.Provide(
		factory.NewCategoryResolver,
		factory.NewFeed,
		factory.NewSessionManager,
	),
	fx.Invoke(warmUpCategories),
)

var httpModule = fx.Module("http",
	fx.Provide(
		factory.NewHandler,
		transport.NewHTTPServer,
	),
	fx.Invoke(serveHTTP),
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	fx.New(
		fx.Provide(config.Load),
		infraModule,
		appModule,
		httpModule,
	).Run()
}

func setupTracer(lc fx.Lifecycle, cfg *config.Config) error {
	shutdown, err := tracing.InitTracer(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("Failed to initialize tracer", "error", err)
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Info("Shutting down tracer provider")
			return shutdown(ctx)
		},
	})
	return nil
}

// waitForReady blocks startup until every configured dependency answers.
func waitForReady(cfg *config.Config, mongoClient *mongo.Client) error {
	var brokers []string
	if cfg.KafkaEnabled() {
		brokers = cfg.KafkaBrokers
	}
	waiter := app.NewReadinessWaiter(mongoClient, brokers, cfg.KafkaTopic)
	return waiter.WaitForDependencies(context.Background())
}

// warmUpCategories loads stored category URIs. A failure only costs extra lookups.
func warmUpCategories(resolver *app.CategoryResolver) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := resolver.WarmUp(ctx); err != nil {
		slog.Warn("Category warm-up failed", "error", err)
	}
}

func serveHTTP(lc fx.Lifecycle, server *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				slog.Info("Starting HTTP server", "address", server.Addr, "service", serviceName)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("HTTP server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			slog.Info("Shutting down HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
