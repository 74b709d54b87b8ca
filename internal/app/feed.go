package app

import (
	"context"
	"fmt"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/querycache"
)

const defaultRelatedLimit = 6

// Feed serves the reads that do not need a search session: the landing page
// feed, article detail and related articles. All of them share the query cache
// with the search sessions.
type Feed struct {
	api          domain.NewsAPI
	cache        *querycache.Cache
	pageSize     int
	maxPages     int
	relatedLimit int
}

func NewFeed(api domain.NewsAPI, cache *querycache.Cache, pageSize, maxPages int) *Feed {
	if pageSize <= 0 {
		pageSize = 12
	}
	return &Feed{
		api:          api,
		cache:        cache,
		pageSize:     pageSize,
		maxPages:     maxPages,
		relatedLimit: defaultRelatedLimit,
	}
}

// Latest returns one page of the newest articles across all categories.
func (f *Feed) Latest(ctx context.Context, page int) (domain.PaginatedResult, error) {
	if page < 1 {
		page = 1
	}
	if f.maxPages > 0 && page > f.maxPages {
		page = f.maxPages
	}
	params := domain.SearchParams{Page: page, PageSize: f.pageSize, SortBy: "date"}
	return querycache.Fetch(ctx, f.cache, searchKey(params), func(ctx context.Context) (domain.PaginatedResult, error) {
		return f.api.SearchArticles(ctx, params)
	})
}

// Article returns a single article by id.
func (f *Feed) Article(ctx context.Context, id string) (domain.Article, error) {
	key := querycache.NewKey(endpointArticle, map[string]string{"id": id})
	return querycache.Fetch(ctx, f.cache, key, func(ctx context.Context) (domain.Article, error) {
		return f.api.GetArticle(ctx, id)
	})
}

// Related returns other recent articles from the same source as id.
func (f *Feed) Related(ctx context.Context, id string) ([]domain.Article, error) {
	article, err := f.Article(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", id, err)
	}
	if article.SourceID == "" {
		return []domain.Article{}, nil
	}

	params := domain.SearchParams{
		SourceURI: article.SourceID,
		Page:      1,
		PageSize:  f.relatedLimit + 1,
		SortBy:    "date",
	}
	result, err := querycache.Fetch(ctx, f.cache, searchKey(params), func(ctx context.Context) (domain.PaginatedResult, error) {
		return f.api.SearchArticles(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	related := make([]domain.Article, 0, f.relatedLimit)
	for _, a := range result.Items {
		if a.ID == id {
			continue
		}
		related = append(related, a)
		if len(related) == f.relatedLimit {
			break
		}
	}
	return related, nil
}
