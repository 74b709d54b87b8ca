package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/NewsDiscover/internal/app"
	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/domain/mocks"
	"github.com/NewsDiscover/internal/infra/querycache"
	"github.com/NewsDiscover/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, api *mocks.MockNewsAPI) http.Handler {
	t.Helper()
	cache := querycache.New(querycache.WithMaxRetries(0))
	t.Cleanup(cache.Close)

	catalog := domain.DefaultCatalog()
	resolver := app.NewCategoryResolver(api, cache, catalog, nil)
	sessions := app.NewSessionManager(api, cache, resolver, nil, app.SessionConfig{PageSize: 12, MaxPages: 10})
	t.Cleanup(sessions.Close)

	h := NewHandler(app.NewFeed(api, cache, 12, 10), sessions, catalog)
	return NewHTTPServer(&config.Config{ServerPort: "0"}, h).Handler
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndCategories(t *testing.T) {
	handler := newTestServer(t, new(mocks.MockNewsAPI))

	rec := do(t, handler, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, handler, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var catalog []domain.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	assert.Equal(t, domain.AllCategories, catalog[0].ID)
}

func TestSearchEndpoint(t *testing.T) {
	api := new(mocks.MockNewsAPI)
	api.On("SuggestCategories", mock.Anything, "Technology").
		Return([]domain.Category{{ProviderURI: "dmoz/Computers"}}, nil).Once()
	api.On("SearchArticles", mock.Anything, domain.SearchParams{Keyword: "ai", CategoryURI: "dmoz/Computers", Page: 2, PageSize: 12}).
		Return(domain.PaginatedResult{Items: []domain.Article{{ID: "1", Title: "Chips"}}, TotalCount: 13, TotalPages: 2, Page: 2}, nil).Once()

	handler := newTestServer(t, api)
	rec := do(t, handler, http.MethodGet, "/api/search?q=ai&category=technology&page=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, app.StateSuccess, resp.State)
	assert.Equal(t, "dmoz/Computers", resp.CategoryURI)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "Chips", resp.Result.Items[0].Title)
	api.AssertExpectations(t)
}

func TestSearchEndpoint_ProviderRejects(t *testing.T) {
	api := new(mocks.MockNewsAPI)
	api.On("SearchArticles", mock.Anything, mock.Anything).
		Return(nil, &domain.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid API key"})

	rec := do(t, newTestServer(t, api), http.MethodGet, "/api/search?q=ai", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "provider_rejected")
}

func TestArticleEndpoints(t *testing.T) {
	api := new(mocks.MockNewsAPI)
	api.On("GetArticle", mock.Anything, "a1").Return(domain.Article{ID: "a1", SourceID: "bbc.co.uk"}, nil)
	api.On("GetArticle", mock.Anything, "missing").
		Return(nil, &domain.APIError{StatusCode: http.StatusNotFound, Message: "article not found"})
	api.On("SearchArticles", mock.Anything, mock.Anything).
		Return(domain.PaginatedResult{Items: []domain.Article{{ID: "a1"}, {ID: "a2"}}}, nil)

	handler := newTestServer(t, api)

	rec := do(t, handler, http.MethodGet, "/api/articles/a1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/articles/a1/related", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var related []domain.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &related))
	require.Len(t, related, 1)
	assert.Equal(t, "a2", related[0].ID)

	rec = do(t, handler, http.MethodGet, "/api/articles/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArticleEndpoints_URLShapedID(t *testing.T) {
	const id = "https://bbc.co.uk/news/42"
	api := new(mocks.MockNewsAPI)
	api.On("GetArticle", mock.Anything, id).Return(domain.Article{ID: id, Title: "Canonical", SourceID: "bbc.co.uk"}, nil)
	api.On("SearchArticles", mock.Anything, mock.Anything).
		Return(domain.PaginatedResult{Items: []domain.Article{{ID: id}, {ID: "b2"}}}, nil)

	handler := newTestServer(t, api)

	rec := do(t, handler, http.MethodGet, "/api/articles/"+url.PathEscape(id), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var article domain.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &article))
	assert.Equal(t, "Canonical", article.Title)

	rec = do(t, handler, http.MethodGet, "/api/articles/"+url.PathEscape(id)+"/related", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var related []domain.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &related))
	require.Len(t, related, 1)
	assert.Equal(t, "b2", related[0].ID)
	api.AssertExpectations(t)
}

func TestSessionEndpoints(t *testing.T) {
	api := new(mocks.MockNewsAPI)
	api.On("SearchArticles", mock.Anything, mock.Anything).
		Return(domain.PaginatedResult{Items: []domain.Article{{ID: "x"}}, TotalCount: 1, TotalPages: 1, Page: 1}, nil)
	handler := newTestServer(t, api)

	rec := do(t, handler, http.MethodPost, "/api/sessions?wait=true", `{"location": "/search?q=ai&page=0"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "/search?q=ai", created.Location)
	assert.Equal(t, app.StateSuccess, created.Snapshot.State)

	base := "/api/sessions/" + created.ID

	rec = do(t, handler, http.MethodPost, base+"/page?wait=true", `{"page": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var paged sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paged))
	assert.Equal(t, 2, paged.Snapshot.Intent.Page)
	assert.Equal(t, "ai", paged.Snapshot.Intent.Keyword)

	rec = do(t, handler, http.MethodPost, base+"/keyword", `{"keyword": "ml", "submit": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var keyword sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keyword))
	assert.Equal(t, 1, keyword.Snapshot.Intent.Page)

	rec = do(t, handler, http.MethodPost, base+"/category", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, handler, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.APIError{StatusCode: 404, Message: "gone"}, http.StatusNotFound, "provider_rejected"},
		{&domain.APIError{StatusCode: 503, Message: "down"}, http.StatusBadGateway, "provider_error"},
		{&domain.NetworkError{Op: "getArticles", Err: errors.New("reset")}, http.StatusBadGateway, "network_error"},
		{&domain.MalformedResponseError{Reason: "bad"}, http.StatusBadGateway, "malformed_response"},
		{domain.ErrUnknownCategory, http.StatusBadRequest, "unknown_category"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, body := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, body.Code, tc.err.Error())
	}
}
