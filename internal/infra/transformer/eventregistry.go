package transformer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NewsDiscover/internal/domain"
)

const (
	EventRegistryName = "eventregistry"

	// PlaceholderImageURL is served for articles without a lead image.
	PlaceholderImageURL = "/images/placeholder-news.svg"
	UnknownSource       = "Unknown"
	UntitledArticle     = "Untitled"

	summaryLimit = 200
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type EventRegistryTransformer struct{}

var _ domain.Normalizer = (*EventRegistryTransformer)(nil)

func NewEventRegistryTransformer() *EventRegistryTransformer {
	return &EventRegistryTransformer{}
}

// NormalizeArticle turns a single raw article object into a domain.Article.
func (t *EventRegistryTransformer) NormalizeArticle(raw []byte) (domain.Article, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return domain.Article{}, err
	}
	return t.normalize(obj), nil
}

// NormalizeArticleList handles the {"articles": {"results": [...]}} search shape.
// Result entries that are not objects are skipped.
func (t *EventRegistryTransformer) NormalizeArticleList(raw []byte) (domain.PaginatedResult, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return domain.PaginatedResult{}, err
	}

	result := domain.PaginatedResult{Items: []domain.Article{}, Page: 1}

	articlesVal := obj["articles"]
	if articlesVal == nil {
		return result, nil
	}
	articles, ok := articlesVal.(map[string]any)
	if !ok {
		return domain.PaginatedResult{}, &domain.MalformedResponseError{
			Reason: fmt.Sprintf("articles: expected object, got %s", kindOf(articlesVal)),
		}
	}

	if resultsVal := articles["results"]; resultsVal != nil {
		results, ok := resultsVal.([]any)
		if !ok {
			return domain.PaginatedResult{}, &domain.MalformedResponseError{
				Reason: fmt.Sprintf("articles.results: expected array, got %s", kindOf(resultsVal)),
			}
		}
		for _, item := range results {
			if itemObj, ok := item.(map[string]any); ok {
				result.Items = append(result.Items, t.normalize(itemObj))
			}
		}
	}

	result.TotalCount = intField(articles, "totalResults")
	result.TotalPages = intField(articles, "pages")
	if page := intField(articles, "page"); page > 0 {
		result.Page = page
	}
	return result, nil
}

// NormalizeArticleEnvelope handles the single-article {"<uri>": {"info": {...}}} shape.
func (t *EventRegistryTransformer) NormalizeArticleEnvelope(raw []byte, id string) (domain.Article, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return domain.Article{}, err
	}

	entryVal, found := obj[id]
	if !found && len(obj) == 1 {
		// The provider may echo a canonicalized uri as the key.
		for _, v := range obj {
			entryVal, found = v, true
		}
	}
	if !found || entryVal == nil {
		return domain.Article{}, &domain.APIError{StatusCode: http.StatusNotFound, Message: "article not found"}
	}

	entry, ok := entryVal.(map[string]any)
	if !ok {
		return domain.Article{}, &domain.MalformedResponseError{
			Reason: fmt.Sprintf("article entry: expected object, got %s", kindOf(entryVal)),
		}
	}
	if msg := stringField(entry, "error"); msg != "" {
		return domain.Article{}, &domain.APIError{StatusCode: http.StatusNotFound, Message: msg}
	}

	info := objectField(entry, "info")
	if info == nil {
		info = entry
	}
	article := t.normalize(info)
	if article.ID == "" {
		article.ID = id
	}
	return article, nil
}

// NormalizeCategorySuggestions handles the suggestCategories list, either bare
// or wrapped in {"results": [...]}.
func (t *EventRegistryTransformer) NormalizeCategorySuggestions(raw []byte) ([]domain.Category, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if obj, ok := v.(map[string]any); ok && obj["results"] != nil {
		v = obj["results"]
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &domain.MalformedResponseError{
			Reason: fmt.Sprintf("category suggestions: expected array, got %s", kindOf(v)),
		}
	}

	categories := make([]domain.Category, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		uri := stringField(obj, "uri")
		if uri == "" {
			continue
		}
		label := stringField(obj, "label")
		if label == "" {
			label = uri
		}
		categories = append(categories, domain.Category{ID: uri, Label: label, ProviderURI: uri})
	}
	return categories, nil
}

// ExtractError returns the message of a provider {"error": "..."} envelope.
func ExtractError(raw []byte) (string, bool) {
	v, err := decode(raw)
	if err != nil {
		return "", false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	msg := stringField(obj, "error")
	return msg, msg != ""
}

func (t *EventRegistryTransformer) normalize(m map[string]any) domain.Article {
	id := stringField(m, "uri")
	canonicalURL := stringField(m, "url")
	if id == "" {
		id = canonicalURL
	}

	title := stringField(m, "title")
	if title == "" {
		title = UntitledArticle
	}

	body := stringField(m, "body")
	summary := stringField(m, "description")
	if summary == "" {
		summary = stringField(m, "summary")
	}
	if summary == "" {
		summary = truncate(body, summaryLimit)
	}
	if body == "" {
		body = summary
	}

	image := stringField(m, "image")
	if image == "" {
		image = PlaceholderImageURL
	}

	source := objectField(m, "source")
	sourceName := stringField(source, "title")
	if sourceName == "" {
		sourceName = UnknownSource
	}

	return domain.Article{
		ID:          id,
		Title:       title,
		Summary:     summary,
		Body:        body,
		ImageURL:    image,
		SourceName:  sourceName,
		SourceID:    stringField(source, "uri"),
		PublishedAt: publishedAt(m),
		URL:         canonicalURL,
		Authors:     authorNames(m),
		Category:    categoryLabel(m),
		Language:    stringField(m, "lang"),
		Sentiment:   floatField(m, "sentiment"),
	}
}

func publishedAt(m map[string]any) time.Time {
	candidates := []string{stringField(m, "dateTimePub"), stringField(m, "dateTime")}
	if date := stringField(m, "date"); date != "" {
		if clock := stringField(m, "time"); clock != "" {
			candidates = append(candidates, date+"T"+clock+"Z")
		}
		candidates = append(candidates, date)
	}
	for _, value := range candidates {
		if value == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, value); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}

func authorNames(m map[string]any) []string {
	names := []string{}
	authors, _ := m["authors"].([]any)
	for _, a := range authors {
		var name string
		switch v := a.(type) {
		case string:
			name = strings.TrimSpace(v)
		case map[string]any:
			name = stringField(v, "name")
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// categoryLabel keeps the last segment of the first category label,
// e.g. "dmoz/Computers/Software" becomes "Software".
func categoryLabel(m map[string]any) string {
	categories, _ := m["categories"].([]any)
	for _, c := range categories {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		label := stringField(obj, "label")
		if label == "" {
			label = stringField(obj, "uri")
		}
		if label == "" {
			continue
		}
		if i := strings.LastIndex(label, "/"); i >= 0 && i < len(label)-1 {
			label = label[i+1:]
		}
		return label
	}
	return ""
}

func truncate(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &domain.MalformedResponseError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	return v, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &domain.MalformedResponseError{Reason: fmt.Sprintf("expected object, got %s", kindOf(v))}
	}
	return obj, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	}
	return ""
}

func objectField(m map[string]any, key string) map[string]any {
	obj, _ := m[key].(map[string]any)
	return obj
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return 0
}

func floatField(m map[string]any, key string) *float64 {
	n, ok := m[key].(json.Number)
	if !ok {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "bool"
	}
	return fmt.Sprintf("%T", v)
}
