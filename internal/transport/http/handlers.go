package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/NewsDiscover/internal/app"
	"github.com/NewsDiscover/internal/domain"
	"github.com/gorilla/mux"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type snapshotResponse struct {
	Intent      domain.SearchIntent     `json:"intent"`
	State       app.State               `json:"state"`
	Generation  uint64                  `json:"generation"`
	CategoryURI string                  `json:"category_uri"`
	Degraded    bool                    `json:"degraded"`
	Pending     bool                    `json:"keyword_pending"`
	Result      *domain.PaginatedResult `json:"result,omitempty"`
	Error       *errorBody              `json:"error,omitempty"`
}

type sessionResponse struct {
	ID              string           `json:"id"`
	Location        string           `json:"location"`
	PendingLocation string           `json:"pending_location,omitempty"`
	Snapshot        snapshotResponse `json:"snapshot"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	result, err := h.feed.Latest(r.Context(), queryInt(r, "page", 1))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	intent := app.ParseIntent(r.URL.Query())

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()
	snap, err := h.sessions.Search(ctx, intent)
	if err != nil {
		writeError(w, err)
		return
	}
	if snap.State == app.StateError {
		writeError(w, snap.Err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

func (h *Handler) article(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	article, err := h.feed.Article(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (h *Handler) related(w http.ResponseWriter, r *http.Request) {
	id, ok := articleID(w, r)
	if !ok {
		return
	}
	articles, err := h.feed.Related(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

// articleID unescapes the {id} route variable, which arrives in encoded form.
func articleID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Code: "invalid_id", Message: err.Error()}})
		return "", false
	}
	return id, true
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Location string `json:"location"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Location == "" {
		req.Location = app.SearchPath
	}

	session, err := h.sessions.Create(req.Location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Code: "invalid_location", Message: err.Error()}})
		return
	}
	h.respondSession(w, r, http.StatusCreated, session)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(mux.Vars(r)["id"]) {
		writeNotFound(w, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionKeyword(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Keyword string `json:"keyword"`
		Submit  bool   `json:"submit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Submit {
		session.Coordinator.SubmitKeyword(req.Keyword)
	} else {
		session.Coordinator.SetKeyword(req.Keyword)
	}
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) sessionCategory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Category string `json:"category"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	session.Coordinator.SetCategory(req.Category)
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) sessionPage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Page int `json:"page"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	session.Coordinator.SetPage(req.Page)
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) sessionNavigate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Location string `json:"location"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := session.Navigate(req.Location); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Code: "invalid_location", Message: err.Error()}})
		return
	}
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) sessionBack(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if _, _, err := session.Back(); err != nil {
		writeError(w, err)
		return
	}
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) sessionForward(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if _, _, err := session.Forward(); err != nil {
		writeError(w, err)
		return
	}
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) sessionRetry(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	session.Coordinator.Retry()
	h.respondSession(w, r, http.StatusOK, session)
}

func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	session, ok := h.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		writeNotFound(w, "session not found")
	}
	return session, ok
}

// respondSession writes the session state. With ?wait=true it first waits
// for the current intent to settle.
func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, status int, session *app.Session) {
	snap := session.Coordinator.Snapshot()
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
		defer cancel()
		settled, err := session.Coordinator.WaitSettled(ctx)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			writeError(w, err)
			return
		}
		snap = settled
	}

	resp := sessionResponse{
		ID:       session.ID,
		Location: session.History.Location(),
		Snapshot: toSnapshotResponse(snap),
	}
	if pending, ok := session.URL.Pending(); ok {
		resp.PendingLocation = pending
	}
	writeJSON(w, status, resp)
}

func toSnapshotResponse(snap app.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		Intent:      snap.Intent,
		State:       snap.State,
		Generation:  snap.Generation,
		CategoryURI: snap.CategoryURI,
		Degraded:    snap.Degraded,
		Pending:     snap.KeywordPending,
		Result:      snap.Result,
	}
	if snap.Err != nil {
		_, body := classify(snap.Err)
		resp.Error = &body
	}
	return resp
}

// classify maps an error to an HTTP status and a stable code.
func classify(err error) (int, errorBody) {
	var (
		apiErr       *domain.APIError
		netErr       *domain.NetworkError
		malformedErr *domain.MalformedResponseError
	)
	switch {
	case errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusBadRequest, errorBody{Code: "unknown_category", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Code: "timeout", Message: err.Error()}
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode, errorBody{Code: "provider_rejected", Message: apiErr.Message}
		}
		return http.StatusBadGateway, errorBody{Code: "provider_error", Message: apiErr.Message}
	case errors.As(err, &malformedErr):
		return http.StatusBadGateway, errorBody{Code: "malformed_response", Message: malformedErr.Reason}
	case errors.As(err, &netErr):
		return http.StatusBadGateway, errorBody{Code: "network_error", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: err.Error()}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{Code: "not_found", Message: msg}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Code: "invalid_body", Message: err.Error()}})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return value
}
