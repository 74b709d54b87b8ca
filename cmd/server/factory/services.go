package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/NewsDiscover/internal/app"
	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/querycache"
	transport "github.com/NewsDiscover/internal/transport/http"
	"github.com/NewsDiscover/pkg/config"
	"go.uber.org/fx"
)

// NewCategoryResolver creates the resolver. store may be nil.
func NewCategoryResolver(
	api domain.NewsAPI,
	cache *querycache.Cache,
	store domain.CategoryURIStore,
	cfg *config.Config,
) (*app.CategoryResolver, error) {
	if api == nil {
		return nil, errors.New("news API is nil")
	}
	if len(cfg.Categories) == 0 {
		return nil, errors.New("no categories configured")
	}
	return app.NewCategoryResolver(api, cache, cfg.Categories, store), nil
}

// NewFeed creates the landing page and article detail service.
func NewFeed(api domain.NewsAPI, cache *querycache.Cache, cfg *config.Config) (*app.Feed, error) {
	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		return nil, fmt.Errorf("invalid page size: %d (must be 1-100)", cfg.PageSize)
	}
	return app.NewFeed(api, cache, cfg.PageSize, cfg.MaxPages), nil
}

// NewSessionManager creates the search session manager and ties its janitor
// to the app lifecycle.
func NewSessionManager(
	lc fx.Lifecycle,
	api domain.NewsAPI,
	cache *querycache.Cache,
	resolver *app.CategoryResolver,
	events domain.EventProducer,
	cfg *config.Config,
) (*app.SessionManager, error) {
	if events == nil {
		return nil, errors.New("event producer is nil")
	}

	manager := app.NewSessionManager(api, cache, resolver, events, app.SessionConfig{
		PageSize:        cfg.PageSize,
		MaxPages:        cfg.MaxPages,
		SortBy:          cfg.SortBy,
		KeywordDebounce: cfg.KeywordDebounce,
		CommitDebounce:  cfg.URLCommitDebounce,
		TTL:             cfg.SessionTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			manager.Start(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			manager.Close()
			return nil
		},
	})
	return manager, nil
}

// NewHandler creates the HTTP API handler.
func NewHandler(feed *app.Feed, sessions *app.SessionManager, cfg *config.Config) *transport.Handler {
	return transport.NewHandler(feed, sessions, cfg.Categories)
}
