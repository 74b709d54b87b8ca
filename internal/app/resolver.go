package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/metrics"
	"github.com/NewsDiscover/internal/infra/querycache"
)

const (
	endpointSuggestCategories = "suggestCategories"
	endpointSearch            = "getArticles"
	endpointArticle           = "getArticle"
)

// Resolution is the provider URI chosen for a category. Fallback is set when
// the configured advisory URI was used because the lookup failed.
type Resolution struct {
	CategoryID string `json:"category"`
	URI        string `json:"uri"`
	Fallback   bool   `json:"fallback"`
}

// CategoryResolver maps internal category ids to provider URIs. Successful
// lookups are kept for the lifetime of the process.
type CategoryResolver struct {
	api     domain.NewsAPI
	cache   *querycache.Cache
	catalog domain.Catalog
	store   domain.CategoryURIStore

	mu       sync.RWMutex
	resolved map[string]string
}

// NewCategoryResolver builds a resolver. store may be nil.
func NewCategoryResolver(api domain.NewsAPI, cache *querycache.Cache, catalog domain.Catalog, store domain.CategoryURIStore) *CategoryResolver {
	return &CategoryResolver{
		api:      api,
		cache:    cache,
		catalog:  catalog,
		store:    store,
		resolved: make(map[string]string),
	}
}

func (r *CategoryResolver) Catalog() domain.Catalog {
	return r.catalog
}

// WarmUp loads previously resolved URIs from the store.
func (r *CategoryResolver) WarmUp(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	uris, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load category uris: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, uri := range uris {
		if _, ok := r.catalog.Lookup(id); ok && uri != "" {
			r.resolved[domain.NormalizeCategoryID(id)] = uri
		}
	}
	slog.Info("Category URIs warmed up", "count", len(r.resolved))
	return nil
}

// Known returns the URI for id without any network call. The "all" category
// is always known and maps to the empty URI.
func (r *CategoryResolver) Known(id string) (string, bool) {
	id = domain.NormalizeCategoryID(id)
	if id == domain.AllCategories {
		return "", true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	uri, ok := r.resolved[id]
	return uri, ok
}

// Resolve returns the provider URI for id, looking it up when needed. A
// failed or empty lookup falls back to the category's configured URI; the
// fallback is not remembered so a later call tries again.
func (r *CategoryResolver) Resolve(ctx context.Context, id string) (Resolution, error) {
	id = domain.NormalizeCategoryID(id)
	if uri, ok := r.Known(id); ok {
		metrics.CategoryResolutions.WithLabelValues("known").Inc()
		return Resolution{CategoryID: id, URI: uri}, nil
	}

	category, ok := r.catalog.Lookup(id)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, id)
	}

	key := querycache.NewKey(endpointSuggestCategories, map[string]string{"categoryId": id})
	suggestions, err := querycache.Fetch(ctx, r.cache, key, func(ctx context.Context) ([]domain.Category, error) {
		return r.api.SuggestCategories(ctx, category.Label)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Resolution{}, ctxErr
	}

	uri := firstURI(suggestions)
	if err != nil || uri == "" {
		metrics.CategoryResolutions.WithLabelValues("fallback").Inc()
		slog.Warn("Category lookup failed, using fallback URI",
			"category", id, "fallback_uri", category.FallbackURI, "error", err)
		return Resolution{CategoryID: id, URI: category.FallbackURI, Fallback: true}, nil
	}

	r.mu.Lock()
	r.resolved[id] = uri
	r.mu.Unlock()
	metrics.CategoryResolutions.WithLabelValues("resolved").Inc()

	if r.store != nil {
		if err := r.store.Save(ctx, id, uri); err != nil {
			slog.Warn("Failed to persist category uri", "category", id, "error", err)
		}
	}
	return Resolution{CategoryID: id, URI: uri}, nil
}

func firstURI(categories []domain.Category) string {
	for _, c := range categories {
		if c.ProviderURI != "" {
			return c.ProviderURI
		}
	}
	return ""
}
