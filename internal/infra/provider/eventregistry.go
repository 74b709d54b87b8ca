package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/metrics"
	"github.com/NewsDiscover/internal/infra/transformer"
	"github.com/NewsDiscover/pkg/logging"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Endpoint is a provider API path relative to the base URL.
type Endpoint string

const (
	EndpointGetArticles       Endpoint = "article/getArticles"
	EndpointGetArticle        Endpoint = "article/getArticle"
	EndpointSuggestCategories Endpoint = "suggestCategoriesFast"
)

const maxResponseBytes = 8 << 20

// RawResponse is an undecoded provider answer.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Lang     string
	SortBy   string
	PageSize int
}

// EventRegistryClient talks to an Event Registry compatible news API.
// It never retries; retry policy belongs to the query cache.
type EventRegistryClient struct {
	name       string
	baseURL    string
	apiKey     string
	lang       string
	sortBy     string
	pageSize   int
	client     *http.Client
	normalizer domain.Normalizer
	cb         *gobreaker.CircuitBreaker
	sampler    *logging.Sampler
}

var _ domain.NewsAPI = (*EventRegistryClient)(nil)

func NewEventRegistryClient(opts Options, normalizer domain.Normalizer) *EventRegistryClient {
	name := transformer.EventRegistryName
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 12
	}
	if opts.SortBy == "" {
		opts.SortBy = "date"
	}

	cbSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if we have 5 consecutive failures
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("CircuitBreaker state changed", "name", name, "from", from, "to", to)
		},
	}

	return &EventRegistryClient{
		name:     name,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		lang:     opts.Lang,
		sortBy:   opts.SortBy,
		pageSize: opts.PageSize,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		normalizer: normalizer,
		cb:         gobreaker.NewCircuitBreaker(cbSettings),
		sampler:    logging.NewSampler(30 * time.Second),
	}
}

func (c *EventRegistryClient) GetName() string {
	return c.name
}

// SearchArticles runs the article search for one page.
func (c *EventRegistryClient) SearchArticles(ctx context.Context, params domain.SearchParams) (domain.PaginatedResult, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = c.sortBy
	}

	body := map[string]any{
		"action":                   "getArticles",
		"resultType":               "articles",
		"articlesPage":             page,
		"articlesCount":            pageSize,
		"articlesSortBy":           sortBy,
		"articleBodyLen":           -1,
		"includeArticleCategories": true,
		"includeArticleImage":      true,
	}
	if c.lang != "" {
		body["lang"] = c.lang
	}
	if params.Keyword != "" {
		body["keyword"] = params.Keyword
	}
	if params.CategoryURI != "" {
		body["categoryUri"] = params.CategoryURI
	}
	if params.SourceURI != "" {
		body["sourceUri"] = params.SourceURI
	}

	raw, err := c.Request(ctx, EndpointGetArticles, http.MethodPost, body)
	if err != nil {
		return domain.PaginatedResult{}, err
	}

	result, err := c.normalizer.NormalizeArticleList(raw.Body)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("failed to normalize search from %s: %w", c.name, err)
	}
	if result.TotalPages == 0 && result.TotalCount > 0 {
		result.TotalPages = (result.TotalCount + pageSize - 1) / pageSize
	}
	return result, nil
}

// GetArticle loads a single article by its provider URI.
func (c *EventRegistryClient) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	body := map[string]any{
		"action":                   "getArticle",
		"articleUri":               id,
		"resultType":               "info",
		"infoArticleBodyLen":       -1,
		"includeArticleCategories": true,
		"includeArticleImage":      true,
	}

	raw, err := c.Request(ctx, EndpointGetArticle, http.MethodPost, body)
	if err != nil {
		return domain.Article{}, err
	}

	article, err := c.normalizer.NormalizeArticleEnvelope(raw.Body, id)
	if err != nil {
		return domain.Article{}, fmt.Errorf("failed to normalize article %s from %s: %w", id, c.name, err)
	}
	return article, nil
}

// SuggestCategories returns provider categories whose label starts with prefix.
func (c *EventRegistryClient) SuggestCategories(ctx context.Context, prefix string) ([]domain.Category, error) {
	raw, err := c.Request(ctx, EndpointSuggestCategories, http.MethodGet, map[string]any{
		"prefix": prefix,
		"page":   1,
		"count":  10,
	})
	if err != nil {
		return nil, err
	}

	categories, err := c.normalizer.NormalizeCategorySuggestions(raw.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize category suggestions from %s: %w", c.name, err)
	}
	return categories, nil
}

// Request sends one call to the provider with the API key attached.
// Transport failures come back as *domain.NetworkError, rejected requests
// as *domain.APIError.
func (c *EventRegistryClient) Request(ctx context.Context, endpoint Endpoint, method string, body map[string]any) (RawResponse, error) {
	tr := otel.Tracer("news-discover")
	ctx, span := tr.Start(ctx, "provider.request")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.name),
		attribute.String("endpoint", string(endpoint)),
		attribute.String("method", method),
	)

	start := time.Now()
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint, method, body)
	})
	metrics.ProviderRequestDuration.WithLabelValues(string(endpoint)).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &domain.NetworkError{Op: string(endpoint), Err: err}
		}
		metrics.ProviderRequests.WithLabelValues(string(endpoint), outcomeOf(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RawResponse{}, err
	}

	metrics.ProviderRequests.WithLabelValues(string(endpoint), "success").Inc()
	c.sampler.Reset(string(endpoint))
	return out.(RawResponse), nil
}

func (c *EventRegistryClient) do(ctx context.Context, endpoint Endpoint, method string, body map[string]any) (RawResponse, error) {
	payload := make(map[string]any, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	payload["apiKey"] = c.apiKey

	target := c.baseURL + "/" + string(endpoint)

	var req *http.Request
	var err error
	switch method {
	case http.MethodGet:
		query := url.Values{}
		for k, v := range payload {
			query.Set(k, fmt.Sprint(v))
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+query.Encode(), nil)
	default:
		encoded, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return RawResponse{}, fmt.Errorf("failed to encode request body: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, method, target, bytes.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return RawResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ok, suppressed := c.sampler.Allow(string(endpoint)); ok {
			slog.Warn("Request failed", "provider", c.name, "endpoint", endpoint, "error", err, "suppressed", suppressed)
		}
		return RawResponse{}, &domain.NetworkError{Op: string(endpoint), Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RawResponse{}, &domain.NetworkError{Op: string(endpoint), Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, ok := transformer.ExtractError(data)
		if !ok {
			msg = http.StatusText(resp.StatusCode)
		}
		slog.Warn("Provider rejected request", "provider", c.name, "endpoint", endpoint, "status_code", resp.StatusCode)
		return RawResponse{}, &domain.APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	// The provider reports some failures (bad key, quota) in a 200 envelope.
	if msg, ok := transformer.ExtractError(data); ok {
		return RawResponse{}, &domain.APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return RawResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// isBreakerSuccess keeps client errors and cancellations from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 500
	}
	return false
}

func outcomeOf(err error) string {
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &apiErr):
		return "api_error"
	case domain.IsRetryable(err):
		return "network_error"
	default:
		return "error"
	}
}
