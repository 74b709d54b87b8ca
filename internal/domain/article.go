package domain

import (
	"context"
	"time"
)

// Article is the normalized news article served to the views.
// It is immutable once produced by the normalizer.
type Article struct {
	ID          string    `json:"id" bson:"_id"` // provider URI
	Title       string    `json:"title" bson:"title"`
	Summary     string    `json:"summary" bson:"summary"`
	Body        string    `json:"body" bson:"body"`
	ImageURL    string    `json:"image_url" bson:"image_url"`
	SourceName  string    `json:"source_name" bson:"source_name"`
	SourceID    string    `json:"source_id" bson:"source_id"`
	PublishedAt time.Time `json:"published_at" bson:"published_at"`
	URL         string    `json:"url" bson:"url"`
	Authors     []string  `json:"authors" bson:"authors"`
	Category    string    `json:"category,omitempty" bson:"category,omitempty"`
	Language    string    `json:"language,omitempty" bson:"language,omitempty"`
	Sentiment   *float64  `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
}

// PaginatedResult is one page of articles as returned by a search.
type PaginatedResult struct {
	Items      []Article `json:"items"`
	TotalCount int       `json:"total_count"`
	TotalPages int       `json:"total_pages"`
	Page       int       `json:"page"`
}

// SearchParams is the provider-level article query.
type SearchParams struct {
	Keyword     string
	CategoryURI string
	SourceURI   string
	Page        int
	PageSize    int
	SortBy      string
}

// NewsAPI is the typed surface of the news provider.
type NewsAPI interface {
	SearchArticles(ctx context.Context, params SearchParams) (PaginatedResult, error)
	GetArticle(ctx context.Context, id string) (Article, error)
	SuggestCategories(ctx context.Context, prefix string) ([]Category, error)
}

// SearchEvent is emitted when a search settles successfully.
type SearchEvent struct {
	SessionID   string    `json:"session_id,omitempty"`
	Keyword     string    `json:"keyword"`
	CategoryID  string    `json:"category_id"`
	CategoryURI string    `json:"category_uri"`
	Page        int       `json:"page"`
	TotalCount  int       `json:"total_count"`
	Degraded    bool      `json:"degraded"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventProducer publishes search events to a queue.
type EventProducer interface {
	PublishSearch(ctx context.Context, event SearchEvent) error
	Close() error
}

// CategoryURIStore persists resolved category URIs across restarts.
type CategoryURIStore interface {
	LoadAll(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, categoryID, uri string) error
}
