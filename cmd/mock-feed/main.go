// Command mock-feed serves a small in-memory stand-in for the Event Registry
// API so the server can run without a real API key.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

type source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type category struct {
	URI   string `json:"uri"`
	Label string `json:"label"`
}

type article struct {
	URI         string     `json:"uri"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Image       string     `json:"image,omitempty"`
	DateTimePub string     `json:"dateTimePub"`
	Lang        string     `json:"lang"`
	Source      source     `json:"source"`
	Categories  []category `json:"categories"`
}

var suggestions = []category{
	{URI: "dmoz/Business", Label: "dmoz/Business"},
	{URI: "dmoz/Computers", Label: "dmoz/Computers"},
	{URI: "dmoz/Arts/Entertainment", Label: "dmoz/Arts/Entertainment"},
	{URI: "dmoz/Health", Label: "dmoz/Health"},
	{URI: "dmoz/Science", Label: "dmoz/Science"},
	{URI: "dmoz/Sports", Label: "dmoz/Sports"},
	{URI: "dmoz/Society/Politics", Label: "dmoz/Society/Politics"},
}

var labelToURI = map[string]string{
	"business":      "dmoz/Business",
	"technology":    "dmoz/Computers",
	"entertainment": "dmoz/Arts/Entertainment",
	"health":        "dmoz/Health",
	"science":       "dmoz/Science",
	"sports":        "dmoz/Sports",
	"politics":      "dmoz/Society/Politics",
}

func corpus() []article {
	sources := []source{
		{URI: "bbc.co.uk", Title: "BBC"},
		{URI: "reuters.com", Title: "Reuters"},
		{URI: "theguardian.com", Title: "The Guardian"},
	}
	now := time.Now().UTC()
	var out []article
	for i := 0; i < 60; i++ {
		cat := suggestions[i%len(suggestions)]
		src := sources[i%len(sources)]
		id := strconv.Itoa(9000 + i)
		out = append(out, article{
			URI:         id,
			URL:         fmt.Sprintf("https://%s/news/%s", src.URI, id),
			Title:       fmt.Sprintf("%s story %d", cat.URI[strings.LastIndex(cat.URI, "/")+1:], i),
			Body:        fmt.Sprintf("Mock article %d filed under %s by %s.", i, cat.URI, src.Title),
			DateTimePub: now.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			Lang:        "eng",
			Source:      src,
			Categories:  []category{cat},
		})
	}
	return out
}

type server struct {
	articles []article
}

func (s *server) getArticles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyword     string `json:"keyword"`
		CategoryURI string `json:"categoryUri"`
		SourceURI   string `json:"sourceUri"`
		Page        int    `json:"articlesPage"`
		Count       int    `json:"articlesCount"`
		APIKey      string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.APIKey == "reject" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid API key"})
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Count < 1 {
		req.Count = 12
	}

	keyword := strings.ToLower(req.Keyword)
	var matched []article
	for _, a := range s.articles {
		if keyword != "" && !strings.Contains(strings.ToLower(a.Title+" "+a.Body), keyword) {
			continue
		}
		if req.CategoryURI != "" && a.Categories[0].URI != req.CategoryURI {
			continue
		}
		if req.SourceURI != "" && a.Source.URI != req.SourceURI {
			continue
		}
		matched = append(matched, a)
	}

	pages := (len(matched) + req.Count - 1) / req.Count
	start := min((req.Page-1)*req.Count, len(matched))
	end := min(start+req.Count, len(matched))

	writeJSON(w, http.StatusOK, map[string]any{
		"articles": map[string]any{
			"results":      matched[start:end],
			"totalResults": len(matched),
			"page":         req.Page,
			"count":        req.Count,
			"pages":        pages,
		},
	})
}

func (s *server) getArticle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArticleURI string `json:"articleUri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	for _, a := range s.articles {
		if a.URI == req.ArticleURI {
			writeJSON(w, http.StatusOK, map[string]any{a.URI: map[string]any{"info": a}})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{req.ArticleURI: map[string]string{"error": "Article not found"}})
}

func (s *server) suggestCategories(w http.ResponseWriter, r *http.Request) {
	prefix := strings.ToLower(r.URL.Query().Get("prefix"))
	out := []category{}
	if uri, ok := labelToURI[prefix]; ok {
		out = append(out, category{URI: uri, Label: uri})
	}
	for _, c := range suggestions {
		if prefix != "" && strings.Contains(strings.ToLower(c.URI), prefix) && (len(out) == 0 || out[0].URI != c.URI) {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func main() {
	s := &server{articles: corpus()}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/article/getArticles", s.getArticles).Methods(http.MethodPost)
	api.HandleFunc("/article/getArticle", s.getArticle).Methods(http.MethodPost)
	api.HandleFunc("/suggestCategoriesFast", s.suggestCategories).Methods(http.MethodGet)

	addr := ":8081"
	if port := os.Getenv("MOCK_FEED_PORT"); port != "" {
		addr = ":" + port
	}
	slog.Info("Mock Event Registry running", "address", addr, "base_url", "http://localhost"+addr+"/api/v1")
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
