package factory

import (
	"errors"
	"log/slog"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/provider"
	"github.com/NewsDiscover/internal/infra/transformer"
	"github.com/NewsDiscover/pkg/config"
)

// NewNewsAPI creates the Event Registry client.
func NewNewsAPI(cfg *config.Config) (domain.NewsAPI, error) {
	if cfg.NewsAPIURL == "" {
		return nil, errors.New("news API URL not configured")
	}

	client := provider.NewEventRegistryClient(provider.Options{
		BaseURL:  cfg.NewsAPIURL,
		APIKey:   cfg.NewsAPIKey,
		Timeout:  cfg.NewsAPITimeout,
		Lang:     cfg.ArticleLang,
		SortBy:   cfg.SortBy,
		PageSize: cfg.PageSize,
	}, transformer.NewEventRegistryTransformer())

	slog.Info("Registered provider", "provider", client.GetName(), "url", cfg.NewsAPIURL)
	return client, nil
}
