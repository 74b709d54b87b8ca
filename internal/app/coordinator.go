package app

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/metrics"
	"github.com/NewsDiscover/internal/infra/querycache"
)

type State string

const (
	StateIdle              State = "idle"
	StateResolvingCategory State = "resolvingCategory"
	StateSearching         State = "searching"
	StateSuccess           State = "success"
	StateError             State = "error"
)

// Settled reports whether the state is a terminal one for the current intent.
func (s State) Settled() bool {
	return s == StateSuccess || s == StateError
}

// Snapshot is what observers of a coordinator see. Result is set only in
// the success state and Err only in the error state. KeywordPending is set
// while a typed keyword waits out the debounce window.
type Snapshot struct {
	Intent         domain.SearchIntent
	State          State
	Generation     uint64
	CategoryURI    string
	Degraded       bool
	KeywordPending bool
	Result         *domain.PaginatedResult
	Err            error
}

type CoordinatorConfig struct {
	SessionID       string
	PageSize        int
	MaxPages        int
	SortBy          string
	KeywordDebounce time.Duration
}

// Coordinator drives one search view: it resolves the category of the
// current intent, then runs the article search, and discards answers that
// belong to an intent which has since been replaced.
type Coordinator struct {
	api      domain.NewsAPI
	cache    *querycache.Cache
	resolver *CategoryResolver
	events   domain.EventProducer
	cfg      CoordinatorConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	snap    Snapshot
	started bool
	closed  bool

	keywordSeq   uint64
	keywordTimer *time.Timer

	resolving     string
	resolveCancel context.CancelFunc

	searchKey    querycache.Key
	searchSub    *querycache.Subscription
	searchCancel context.CancelFunc

	watchers map[chan Snapshot]struct{}
}

// NewCoordinator builds an idle coordinator. events may be nil.
func NewCoordinator(api domain.NewsAPI, cache *querycache.Cache, resolver *CategoryResolver, events domain.EventProducer, cfg CoordinatorConfig) *Coordinator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 12
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		api:      api,
		cache:    cache,
		resolver: resolver,
		events:   events,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		snap:     Snapshot{Intent: domain.DefaultIntent(), State: StateIdle},
		watchers: make(map[chan Snapshot]struct{}),
	}
}

// Start leaves the idle state with the given intent. On a running
// coordinator it behaves like SetIntent.
func (c *Coordinator) Start(intent domain.SearchIntent) {
	c.SetIntent(intent)
}

// SetKeyword records a keyword being typed. It is applied once typing has
// paused for the debounce window.
func (c *Coordinator) SetKeyword(keyword string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.cfg.KeywordDebounce <= 0 {
		c.commitKeywordLocked(keyword)
		return
	}

	c.stopKeywordTimerLocked()
	seq := c.keywordSeq
	c.snap.KeywordPending = true
	c.keywordTimer = time.AfterFunc(c.cfg.KeywordDebounce, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.keywordSeq != seq {
			return
		}
		c.keywordTimer = nil
		c.snap.KeywordPending = false
		c.commitKeywordLocked(keyword)
		c.publishLocked()
	})
	c.publishLocked()
}

// SubmitKeyword applies keyword at once, dropping any pending typed value.
func (c *Coordinator) SubmitKeyword(keyword string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopKeywordTimerLocked()
	c.commitKeywordLocked(keyword)
	c.publishLocked()
}

// SetCategory switches the category and goes back to the first page.
func (c *Coordinator) SetCategory(categoryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.started && domain.NormalizeCategoryID(categoryID) == c.snap.Intent.CategoryID {
		return
	}
	c.applyLocked(c.snap.Intent.WithCategory(categoryID))
}

// SetPage moves to another page of the current keyword and category.
func (c *Coordinator) SetPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	next := c.clamp(c.snap.Intent.WithPage(page))
	if c.started && next == c.snap.Intent {
		return
	}
	c.applyLocked(next)
}

// SetIntent applies a complete intent, as decoded from an address. The page
// is taken as given.
func (c *Coordinator) SetIntent(intent domain.SearchIntent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	next := c.clamp(intent.Normalize())
	if c.started && next == c.snap.Intent {
		return
	}
	c.stopKeywordTimerLocked()
	c.applyLocked(next)
}

// Retry runs the current intent again, bypassing any cached answer. A
// fallback category URI is looked up again.
func (c *Coordinator) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.started {
		return
	}
	if c.searchSub != nil {
		c.cache.Invalidate(c.searchKey)
	}
	if c.snap.Degraded {
		c.snap.CategoryURI = ""
		c.snap.Degraded = false
	}
	c.applyLocked(c.snap.Intent)
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Watch returns a channel that always holds the latest snapshot, starting
// with the current one. Intermediate snapshots may be skipped. The returned
// func stops the watch; Close stops all of them.
func (c *Coordinator) Watch() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		ch <- c.snap
		close(ch)
		return ch, func() {}
	}
	c.watchers[ch] = struct{}{}
	ch <- c.snap

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.watchers[ch]; ok {
				delete(c.watchers, ch)
				close(ch)
			}
		})
	}
	return ch, stop
}

// WaitSettled blocks until the current intent reaches success or error. A
// keyword still inside its debounce window is part of the current intent.
func (c *Coordinator) WaitSettled(ctx context.Context) (Snapshot, error) {
	ch, stop := c.Watch()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return c.Snapshot(), context.Canceled
			}
			if snap.State.Settled() && !snap.KeywordPending {
				return snap, nil
			}
		}
	}
}

// Close stops timers, abandons pending work and releases cache holds.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopKeywordTimerLocked()
	c.cancel()
	if c.searchSub != nil {
		c.searchSub.Release()
		c.searchSub = nil
	}
	for ch := range c.watchers {
		close(ch)
	}
	c.watchers = nil
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) commitKeywordLocked(keyword string) {
	next := c.snap.Intent.WithKeyword(keyword)
	if c.started && next.Keyword == c.snap.Intent.Keyword {
		return
	}
	c.applyLocked(next)
}

func (c *Coordinator) stopKeywordTimerLocked() {
	c.keywordSeq++
	c.snap.KeywordPending = false
	if c.keywordTimer != nil {
		c.keywordTimer.Stop()
		c.keywordTimer = nil
	}
}

func (c *Coordinator) clamp(intent domain.SearchIntent) domain.SearchIntent {
	if c.cfg.MaxPages > 0 && intent.Page > c.cfg.MaxPages {
		intent.Page = c.cfg.MaxPages
	}
	return intent
}

// applyLocked makes intent current. The previous search hold is released
// only after the new one is taken, so re-applying the same query keeps a
// shared fetch alive.
func (c *Coordinator) applyLocked(intent domain.SearchIntent) {
	intent = c.clamp(intent.Normalize())
	categoryChanged := !c.started || intent.CategoryID != c.snap.Intent.CategoryID
	wasResolving := c.snap.State == StateResolvingCategory

	c.started = true
	c.snap.Intent = intent
	c.snap.Generation++
	c.snap.Result = nil
	c.snap.Err = nil

	prev := c.searchSub
	c.searchSub = nil
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	defer func() {
		if prev != nil {
			prev.Release()
		}
	}()

	if wasResolving && !categoryChanged {
		// The pending lookup searches with whatever intent is current when it lands.
		c.publishLocked()
		return
	}

	if !categoryChanged && c.snap.CategoryURI != "" {
		// Same category: search with the URI already in hand, fallback included.
		c.searchLocked()
		return
	}

	if c.resolveCancel != nil {
		c.resolveCancel()
		c.resolveCancel = nil
		c.resolving = ""
	}

	if uri, ok := c.resolver.Known(intent.CategoryID); ok {
		c.snap.CategoryURI = uri
		c.snap.Degraded = false
		c.searchLocked()
		return
	}

	c.snap.CategoryURI = ""
	c.snap.Degraded = false
	c.setStateLocked(StateResolvingCategory)
	c.resolving = intent.CategoryID

	ctx, cancel := context.WithCancel(c.ctx)
	c.resolveCancel = cancel
	c.wg.Add(1)
	go c.resolve(ctx, intent.CategoryID)

	c.publishLocked()
}

func (c *Coordinator) resolve(ctx context.Context, categoryID string) {
	defer c.wg.Done()
	res, err := c.resolver.Resolve(ctx, categoryID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || ctx.Err() != nil || c.snap.State != StateResolvingCategory || c.resolving != categoryID {
		metrics.StaleResponsesDiscarded.WithLabelValues("category").Inc()
		return
	}
	c.resolveCancel()
	c.resolveCancel = nil
	c.resolving = ""

	if err != nil {
		c.failLocked(err)
		return
	}
	c.snap.CategoryURI = res.URI
	c.snap.Degraded = res.Fallback
	c.searchLocked()
}

func (c *Coordinator) searchLocked() {
	intent := c.snap.Intent
	params := domain.SearchParams{
		Keyword:     intent.Keyword,
		CategoryURI: c.snap.CategoryURI,
		Page:        intent.Page,
		PageSize:    c.cfg.PageSize,
		SortBy:      c.cfg.SortBy,
	}

	c.setStateLocked(StateSearching)
	c.searchKey = searchKey(params)
	sub := c.cache.Subscribe(c.searchKey, func(ctx context.Context) (any, error) {
		return c.api.SearchArticles(ctx, params)
	})
	c.searchSub = sub

	ctx, cancel := context.WithCancel(c.ctx)
	c.searchCancel = cancel
	c.wg.Add(1)
	go c.awaitSearch(ctx, sub, c.snap.Generation)

	c.publishLocked()
}

func (c *Coordinator) awaitSearch(ctx context.Context, sub *querycache.Subscription, generation uint64) {
	defer c.wg.Done()
	result, err := querycache.Await[domain.PaginatedResult](ctx, sub)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || ctx.Err() != nil || c.snap.Generation != generation || c.searchSub != sub {
		metrics.StaleResponsesDiscarded.WithLabelValues("search").Inc()
		return
	}
	c.searchCancel()
	c.searchCancel = nil

	if err != nil {
		c.failLocked(err)
		return
	}
	c.snap.Result = &result
	c.setStateLocked(StateSuccess)
	c.publishLocked()
	c.publishEventLocked(result)
}

func (c *Coordinator) failLocked(err error) {
	slog.Warn("Search failed", "session", c.cfg.SessionID, "intent", c.snap.Intent, "error", err)
	c.snap.Err = err
	c.setStateLocked(StateError)
	c.publishLocked()
}

func (c *Coordinator) setStateLocked(state State) {
	c.snap.State = state
	metrics.SearchTransitions.WithLabelValues(string(state)).Inc()
}

func (c *Coordinator) publishLocked() {
	for ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c.snap
	}
}

func (c *Coordinator) publishEventLocked(result domain.PaginatedResult) {
	if c.events == nil {
		return
	}
	event := domain.SearchEvent{
		SessionID:   c.cfg.SessionID,
		Keyword:     c.snap.Intent.Keyword,
		CategoryID:  c.snap.Intent.CategoryID,
		CategoryURI: c.snap.CategoryURI,
		Page:        c.snap.Intent.Page,
		TotalCount:  result.TotalCount,
		Degraded:    c.snap.Degraded,
		OccurredAt:  time.Now().UTC(),
	}
	// Not tied to the coordinator: a one-shot search closes right after it settles.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), 5*time.Second)
	go func() {
		defer cancel()
		if err := c.events.PublishSearch(ctx, event); err != nil {
			slog.Warn("Failed to publish search event", "session", event.SessionID, "error", err)
		}
	}()
}

func searchKey(params domain.SearchParams) querycache.Key {
	return querycache.NewKey(endpointSearch, map[string]string{
		"keyword":     params.Keyword,
		"categoryUri": params.CategoryURI,
		"sourceUri":   params.SourceURI,
		"page":        strconv.Itoa(params.Page),
		"pageSize":    strconv.Itoa(params.PageSize),
		"sortBy":      params.SortBy,
	})
}
