package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/domain/mocks"
	"github.com/NewsDiscover/internal/infra/provider"
	"github.com/NewsDiscover/internal/infra/transformer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeAPI records calls in order and lets tests script each answer.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	suggest func(ctx context.Context, prefix string) ([]domain.Category, error)
	search  func(ctx context.Context, params domain.SearchParams) (domain.PaginatedResult, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		suggest: func(ctx context.Context, prefix string) ([]domain.Category, error) {
			uri := map[string]string{"Technology": "dmoz/Computers", "Sports": "dmoz/Sports"}[prefix]
			return []domain.Category{{ID: uri, Label: uri, ProviderURI: uri}}, nil
		},
		search: func(ctx context.Context, params domain.SearchParams) (domain.PaginatedResult, error) {
			return resultFor(params), nil
		},
	}
}

func resultFor(params domain.SearchParams) domain.PaginatedResult {
	return domain.PaginatedResult{
		Items:      []domain.Article{{ID: fmt.Sprintf("%s-%s-%d", params.Keyword, params.CategoryURI, params.Page)}},
		TotalCount: 30,
		TotalPages: 3,
		Page:       params.Page,
	}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) SearchArticles(ctx context.Context, params domain.SearchParams) (domain.PaginatedResult, error) {
	f.record(fmt.Sprintf("search:%s|%s|%d", params.Keyword, params.CategoryURI, params.Page))
	return f.search(ctx, params)
}

func (f *fakeAPI) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	f.record("article:" + id)
	return domain.Article{ID: id}, nil
}

func (f *fakeAPI) SuggestCategories(ctx context.Context, prefix string) ([]domain.Category, error) {
	f.record("suggest:" + prefix)
	return f.suggest(ctx, prefix)
}

func (f *fakeAPI) searches() []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, "search:") {
			out = append(out, c)
		}
	}
	return out
}

func newTestCoordinator(t *testing.T, api domain.NewsAPI, cfg CoordinatorConfig) *Coordinator {
	t.Helper()
	cache := newTestCache(t)
	resolver := NewCategoryResolver(api, cache, domain.DefaultCatalog(), nil)
	c := NewCoordinator(api, cache, resolver, nil, cfg)
	t.Cleanup(c.Close)
	return c
}

func waitForSnapshot(t *testing.T, c *Coordinator, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	ch, stop := c.Watch()
	defer stop()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if pred(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for snapshot, last: %+v", c.Snapshot())
		}
	}
}

func settledWith(keyword string) func(Snapshot) bool {
	return func(s Snapshot) bool {
		return s.State.Settled() && s.Intent.Keyword == keyword
	}
}

func TestCoordinator_CategoryLookupThenSearch(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{PageSize: 12})

	assert.Equal(t, StateIdle, c.Snapshot().State)

	c.Start(domain.SearchIntent{CategoryID: "technology", Page: 1})
	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, "dmoz/Computers", snap.CategoryURI)
	assert.False(t, snap.Degraded)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 1, snap.Result.Page)
	assert.Equal(t, []string{"suggest:Technology", "search:|dmoz/Computers|1"}, api.Calls())
}

func TestCoordinator_AllCategorySearchesDirectly(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{Keyword: "ai"})
	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, []string{"search:ai||1"}, api.Calls())
}

func TestCoordinator_NoSearchWhileResolving(t *testing.T) {
	api := newFakeAPI()
	gate := make(chan struct{})
	api.suggest = func(ctx context.Context, prefix string) ([]domain.Category, error) {
		<-gate
		return []domain.Category{{ProviderURI: "dmoz/Sports"}}, nil
	}
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{CategoryID: "sports", Page: 1})
	assert.Equal(t, StateResolvingCategory, c.Snapshot().State)

	// Keyword and page changes while resolving only update the intent.
	c.SubmitKeyword("derby")
	c.SetPage(2)
	snap := c.Snapshot()
	assert.Equal(t, StateResolvingCategory, snap.State)
	assert.Equal(t, domain.SearchIntent{Keyword: "derby", CategoryID: "sports", Page: 2}, snap.Intent)
	assert.Empty(t, api.searches())

	close(gate)
	snap = waitForSnapshot(t, c, settledWith("derby"))
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, []string{"suggest:Sports", "search:derby|dmoz/Sports|2"}, api.Calls())
}

func TestCoordinator_LookupFailureFallsBack(t *testing.T) {
	api := newFakeAPI()
	api.suggest = func(ctx context.Context, prefix string) ([]domain.Category, error) {
		return nil, &domain.NetworkError{Op: "suggestCategories", Err: errors.New("connection refused")}
	}
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{CategoryID: "technology"})
	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, snap.State)
	assert.True(t, snap.Degraded)
	assert.Equal(t, "dmoz/Computers", snap.CategoryURI)
	assert.Equal(t, []string{"search:|dmoz/Computers|1"}, api.searches())
}

func TestCoordinator_FallbackURIIsReusedForSameCategory(t *testing.T) {
	api := newFakeAPI()
	api.suggest = func(ctx context.Context, prefix string) ([]domain.Category, error) {
		return nil, &domain.NetworkError{Op: "suggestCategories", Err: errors.New("connection refused")}
	}
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{CategoryID: "technology"})
	_, err := c.WaitSettled(context.Background())
	require.NoError(t, err)
	before := len(api.Calls())

	c.SetPage(2)
	assert.Equal(t, StateSearching, c.Snapshot().State)

	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, snap.State)
	assert.True(t, snap.Degraded)
	assert.Equal(t, []string{"search:|dmoz/Computers|2"}, api.Calls()[before:])

	c.SubmitKeyword("chips")
	_, err = c.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"search:|dmoz/Computers|2", "search:chips|dmoz/Computers|1"}, api.Calls()[before:])
}

func TestCoordinator_RetryLooksUpFallbackCategoryAgain(t *testing.T) {
	api := newFakeAPI()
	var mu sync.Mutex
	down := true
	api.suggest = func(ctx context.Context, prefix string) ([]domain.Category, error) {
		mu.Lock()
		defer mu.Unlock()
		if down {
			return nil, &domain.NetworkError{Op: "suggestCategories", Err: errors.New("connection refused")}
		}
		return []domain.Category{{ProviderURI: "dmoz/Computers/Hardware"}}, nil
	}
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{CategoryID: "technology"})
	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)
	require.True(t, snap.Degraded)

	mu.Lock()
	down = false
	mu.Unlock()

	c.Retry()
	snap = waitForSnapshot(t, c, func(s Snapshot) bool { return s.State.Settled() && !s.Degraded })
	assert.Equal(t, "dmoz/Computers/Hardware", snap.CategoryURI)
	assert.Equal(t, []string{"suggest:Technology", "search:|dmoz/Computers|1", "suggest:Technology", "search:|dmoz/Computers/Hardware|1"}, api.Calls())
}

func TestCoordinator_WaitSettledIncludesPendingKeyword(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{KeywordDebounce: 100 * time.Millisecond})

	c.Start(domain.SearchIntent{Keyword: "old"})
	_, err := c.WaitSettled(context.Background())
	require.NoError(t, err)

	c.SetKeyword("new")
	assert.True(t, c.Snapshot().KeywordPending)

	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Intent.Keyword)
	assert.Equal(t, StateSuccess, snap.State)
	assert.False(t, snap.KeywordPending)
}

func TestCoordinator_WaitSettledWhenTypedKeywordIsUnchanged(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{KeywordDebounce: 20 * time.Millisecond})

	c.Start(domain.SearchIntent{Keyword: "same"})
	_, err := c.WaitSettled(context.Background())
	require.NoError(t, err)

	c.SetKeyword("same")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := c.WaitSettled(ctx)
	require.NoError(t, err)
	assert.Equal(t, "same", snap.Intent.Keyword)
	assert.Equal(t, []string{"search:same||1"}, api.searches())
}

func TestCoordinator_KeywordDebounce(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{KeywordDebounce: 50 * time.Millisecond})

	c.Start(domain.DefaultIntent())
	_, err := c.WaitSettled(context.Background())
	require.NoError(t, err)

	c.SetKeyword("election")
	c.SetKeyword("elections")

	snap := waitForSnapshot(t, c, settledWith("elections"))
	assert.Equal(t, StateSuccess, snap.State)

	var keywordSearches []string
	for _, s := range api.searches() {
		if strings.HasPrefix(s, "search:election") {
			keywordSearches = append(keywordSearches, s)
		}
	}
	assert.Equal(t, []string{"search:elections||1"}, keywordSearches)
}

func TestCoordinator_SubmitCancelsPendingKeyword(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{KeywordDebounce: 30 * time.Millisecond})

	c.Start(domain.DefaultIntent())
	c.SetKeyword("typing")
	c.SubmitKeyword("final")

	waitForSnapshot(t, c, settledWith("final"))
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, "final", c.Snapshot().Intent.Keyword)
	for _, s := range api.searches() {
		assert.NotContains(t, s, "typing")
	}
}

func TestCoordinator_PageResetRules(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{Keyword: "ai", CategoryID: "technology", Page: 1})
	c.SetPage(3)
	snap := c.Snapshot()
	assert.Equal(t, domain.SearchIntent{Keyword: "ai", CategoryID: "technology", Page: 3}, snap.Intent)

	c.SubmitKeyword("ml")
	assert.Equal(t, 1, c.Snapshot().Intent.Page)

	c.SetPage(2)
	c.SetCategory("sports")
	snap = c.Snapshot()
	assert.Equal(t, domain.SearchIntent{Keyword: "ml", CategoryID: "sports", Page: 1}, snap.Intent)

	// Address navigation keeps the page it is given.
	c.SetIntent(domain.SearchIntent{Keyword: "ml", CategoryID: "business", Page: 4})
	assert.Equal(t, 4, c.Snapshot().Intent.Page)
}

func TestCoordinator_MaxPagesClamp(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{MaxPages: 5})

	c.Start(domain.SearchIntent{Page: 40})
	assert.Equal(t, 5, c.Snapshot().Intent.Page)
}

func TestCoordinator_SupersededResponseIsDropped(t *testing.T) {
	api := newFakeAPI()
	slowGate := make(chan struct{})
	slowAborted := make(chan struct{})
	api.search = func(ctx context.Context, params domain.SearchParams) (domain.PaginatedResult, error) {
		if params.Keyword == "slow" {
			<-slowGate
			if ctx.Err() != nil {
				close(slowAborted)
			}
			return resultFor(params), nil
		}
		return resultFor(params), nil
	}
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{Keyword: "slow"})
	require.Eventually(t, func() bool { return len(api.searches()) == 1 }, time.Second, 5*time.Millisecond)

	c.SubmitKeyword("fast")
	waitForSnapshot(t, c, settledWith("fast"))

	close(slowGate)
	select {
	case <-slowAborted:
	case <-time.After(time.Second):
		t.Fatal("superseded request was not aborted")
	}
	time.Sleep(20 * time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, "fast", snap.Intent.Keyword)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "fast--1", snap.Result.Items[0].ID)
}

func TestCoordinator_ErrorAndRetry(t *testing.T) {
	api := newFakeAPI()
	var mu sync.Mutex
	fail := true
	api.search = func(ctx context.Context, params domain.SearchParams) (domain.PaginatedResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return domain.PaginatedResult{}, &domain.APIError{StatusCode: 500, Message: "upstream"}
		}
		return resultFor(params), nil
	}
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{Keyword: "ai"})
	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateError, snap.State)
	var apiErr *domain.APIError
	assert.ErrorAs(t, snap.Err, &apiErr)
	assert.Nil(t, snap.Result)

	mu.Lock()
	fail = false
	mu.Unlock()

	c.Retry()
	snap, err = c.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, snap.State)
	assert.Nil(t, snap.Err)
	assert.Len(t, api.searches(), 2)
}

func TestCoordinator_UnknownCategoryIsAnError(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{})

	c.Start(domain.SearchIntent{CategoryID: "astrology"})
	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateError, snap.State)
	assert.ErrorIs(t, snap.Err, domain.ErrUnknownCategory)
	assert.Empty(t, api.searches())
}

func TestCoordinator_PublishesSearchEvent(t *testing.T) {
	api := newFakeAPI()
	events := new(mocks.MockEventProducer)
	done := make(chan domain.SearchEvent, 1)
	events.On("PublishSearch", mock.Anything, mock.AnythingOfType("domain.SearchEvent")).
		Run(func(args mock.Arguments) { done <- args.Get(1).(domain.SearchEvent) }).
		Return(nil).Once()

	cache := newTestCache(t)
	resolver := NewCategoryResolver(api, cache, domain.DefaultCatalog(), nil)
	c := NewCoordinator(api, cache, resolver, events, CoordinatorConfig{SessionID: "s1"})
	defer c.Close()

	c.Start(domain.SearchIntent{Keyword: "ai", CategoryID: "sports"})

	select {
	case event := <-done:
		assert.Equal(t, "s1", event.SessionID)
		assert.Equal(t, "ai", event.Keyword)
		assert.Equal(t, "sports", event.CategoryID)
		assert.Equal(t, "dmoz/Sports", event.CategoryURI)
		assert.Equal(t, 30, event.TotalCount)
	case <-time.After(2 * time.Second):
		t.Fatal("search event was not published")
	}
}

func TestCoordinator_CloseIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	c := newTestCoordinator(t, api, CoordinatorConfig{KeywordDebounce: time.Hour})

	ch, _ := c.Watch()
	c.Start(domain.DefaultIntent())
	c.SetKeyword("never")
	c.Close()
	c.Close()

	for range ch {
	}
	c.SubmitKeyword("ignored")
	assert.NotEqual(t, "ignored", c.Snapshot().Intent.Keyword)
}

// The category lookup must finish on the wire before the search request is sent.
func TestCoordinator_WireOrderingWithProvider(t *testing.T) {
	var mu sync.Mutex
	var events []string
	logEvent := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/suggestCategoriesFast":
			logEvent("lookup-start")
			time.Sleep(30 * time.Millisecond)
			_, _ = w.Write([]byte(`[{"uri": "dmoz/Computers", "label": "dmoz/Computers"}]`))
			logEvent("lookup-end")
		case "/article/getArticles":
			logEvent("search")
			_, _ = w.Write([]byte(`{"articles": {"results": [{"uri": "1", "title": "Chips"}], "totalResults": 1, "pages": 1, "page": 1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := provider.NewEventRegistryClient(provider.Options{BaseURL: server.URL, APIKey: "k"},
		transformer.NewEventRegistryTransformer())
	c := newTestCoordinator(t, client, CoordinatorConfig{PageSize: 12})

	c.Start(domain.SearchIntent{CategoryID: "technology"})
	snap, err := c.WaitSettled(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, "Chips", snap.Result.Items[0].Title)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"lookup-start", "lookup-end", "search"}, events)
}
