package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NewsDiscover/internal/app"
	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/pkg/config"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewHTTPServer(cfg *config.Config, h *Handler) *http.Server {
	// Article ids may be canonical URLs; clients send them with "/" escaped.
	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, "OK"); err != nil {
			// Log error but don't fail health check
			_ = err
		}
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	h.Register(r.PathPrefix("/api").Subrouter())
	r.Use(logRequests)

	return &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler exposes the feed, one-shot search and search sessions as JSON.
type Handler struct {
	feed        *app.Feed
	sessions    *app.SessionManager
	catalog     domain.Catalog
	waitTimeout time.Duration
}

func NewHandler(feed *app.Feed, sessions *app.SessionManager, catalog domain.Catalog) *Handler {
	return &Handler{
		feed:        feed,
		sessions:    sessions,
		catalog:     catalog,
		waitTimeout: 15 * time.Second,
	}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet)
	r.HandleFunc("/latest", h.latest).Methods(http.MethodGet)
	r.HandleFunc("/search", h.search).Methods(http.MethodGet)
	r.HandleFunc("/articles/{id:.+}/related", h.related).Methods(http.MethodGet)
	r.HandleFunc("/articles/{id:.+}", h.article).Methods(http.MethodGet)

	r.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", h.getSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.deleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/keyword", h.sessionKeyword).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/category", h.sessionCategory).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/page", h.sessionPage).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/navigate", h.sessionNavigate).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/back", h.sessionBack).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/forward", h.sessionForward).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/retry", h.sessionRetry).Methods(http.MethodPost)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
