package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/metrics"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetention       = 60 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryBackoff    = 500 * time.Millisecond
	defaultJanitorInterval = 10 * time.Second
)

// ErrReleased is returned by Wait on a subscription that was already released.
var ErrReleased = errors.New("querycache: subscription released")

type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// Fetcher performs the network request behind a key. It must honour ctx.
type Fetcher func(ctx context.Context) (any, error)

// Result is a point-in-time view of an entry.
type Result struct {
	Status    Status
	Data      any
	Err       error
	FetchedAt time.Time
}

type Option func(*Cache)

func WithRetention(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.retention = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Cache) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

func WithJanitorInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.janitorInterval = d
		}
	}
}

type call struct {
	generation uint64
	done       chan struct{}
	cancel     context.CancelFunc

	// written once before done is closed
	data any
	err  error
}

type entry struct {
	key         Key
	status      Status
	data        any
	err         error
	fetchedAt   time.Time
	subscribers int
	releasedAt  time.Time
	generation  uint64
	inflight    *call
}

// Cache deduplicates concurrent identical requests and keeps their results
// for a retention window after the last subscriber leaves.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry

	retention       time.Duration
	maxRetries      int
	retryBackoff    time.Duration
	janitorInterval time.Duration
	now             func() time.Time

	baseCtx   context.Context
	cancelAll context.CancelFunc
}

func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:         make(map[Key]*entry),
		retention:       DefaultRetention,
		maxRetries:      DefaultMaxRetries,
		retryBackoff:    DefaultRetryBackoff,
		janitorInterval: defaultJanitorInterval,
		now:             time.Now,
		baseCtx:         ctx,
		cancelAll:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs the eviction janitor until ctx is done or the cache is closed.
func (c *Cache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.baseCtx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// Close aborts every in-flight fetch.
func (c *Cache) Close() {
	c.cancelAll()
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe registers interest in key. Cached success data is served as is,
// a fetch already in flight is joined, anything else starts a new fetch.
func (c *Cache) Subscribe(key Key, fetcher Fetcher) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(key, fetcher)
}

// Invalidate drops the settled state of key so the next subscriber fetches
// again. A fetch already in flight is left alone.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(key)
}

// Refetch invalidates key and subscribes to it in one step.
func (c *Cache) Refetch(key Key, fetcher Fetcher) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(key)
	return c.subscribeLocked(key, fetcher)
}

// Peek returns the state of key without subscribing.
func (c *Cache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	return e.result(), true
}

func (c *Cache) subscribeLocked(key Key, fetcher Fetcher) *Subscription {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key}
		c.entries[key] = e
		metrics.CacheEntries.Set(float64(len(c.entries)))
	}
	e.subscribers++
	e.releasedAt = time.Time{}

	s := &Subscription{cache: c, key: key, entry: e}
	switch {
	case e.inflight != nil:
		metrics.CacheLookups.WithLabelValues(key.Endpoint(), "shared").Inc()
		s.call = e.inflight
	case e.status == StatusSuccess:
		metrics.CacheLookups.WithLabelValues(key.Endpoint(), "hit").Inc()
		s.data = e.data
	default:
		metrics.CacheLookups.WithLabelValues(key.Endpoint(), "miss").Inc()
		s.call = c.startLocked(e, fetcher)
	}
	return s
}

func (c *Cache) invalidateLocked(key Key) {
	e, ok := c.entries[key]
	if !ok || e.inflight != nil {
		return
	}
	e.generation++
	e.status = StatusPending
	e.data = nil
	e.err = nil
}

func (c *Cache) startLocked(e *entry, fetcher Fetcher) *call {
	e.generation++
	ctx, cancel := context.WithCancel(c.baseCtx)
	cl := &call{
		generation: e.generation,
		done:       make(chan struct{}),
		cancel:     cancel,
	}
	e.inflight = cl
	e.status = StatusPending
	go c.run(ctx, e, cl, fetcher)
	return cl
}

func (c *Cache) run(ctx context.Context, e *entry, cl *call, fetcher Fetcher) {
	endpoint := e.key.Endpoint()
	data, err := c.fetchWithRetry(ctx, endpoint, fetcher)

	c.mu.Lock()
	current := e.inflight == cl
	if current {
		e.inflight = nil
		if err != nil {
			e.status = StatusError
			e.data = nil
			e.err = err
		} else {
			e.status = StatusSuccess
			e.data = data
			e.err = nil
			e.fetchedAt = c.now()
		}
	}
	c.mu.Unlock()

	cl.data, cl.err = data, err
	cl.cancel()
	close(cl.done)

	switch {
	case !current:
		metrics.CacheFetches.WithLabelValues(endpoint, "aborted").Inc()
	case err != nil:
		metrics.CacheFetches.WithLabelValues(endpoint, "error").Inc()
		slog.Warn("Query failed", "key", e.key.String(), "error", err)
	default:
		metrics.CacheFetches.WithLabelValues(endpoint, "success").Inc()
	}
}

// fetchWithRetry retries network errors with exponential backoff. Every other
// error ends the fetch immediately.
func (c *Cache) fetchWithRetry(ctx context.Context, endpoint string, fetcher Fetcher) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBackoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)

	operation := func() (any, error) {
		data, err := fetcher(ctx)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil || !domain.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.CacheRetries.WithLabelValues(endpoint).Inc()
		slog.Debug("Retrying query", "endpoint", endpoint, "error", err, "backoff", wait)
	}

	data, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return data, nil
}

func (c *Cache) release(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.released {
		return
	}
	s.released = true

	e := s.entry
	e.subscribers--
	if e.subscribers > 0 {
		return
	}
	if cl := e.inflight; cl != nil {
		// Nobody is left to read the answer.
		e.inflight = nil
		e.status = StatusPending
		e.data = nil
		e.err = nil
		cl.cancel()
	}
	e.releasedAt = c.now()
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if e.subscribers > 0 || e.inflight != nil || e.releasedAt.IsZero() {
			continue
		}
		if now.Sub(e.releasedAt) >= c.retention {
			delete(c.entries, key)
			metrics.CacheEvictions.Inc()
		}
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

func (e *entry) result() Result {
	return Result{Status: e.status, Data: e.data, Err: e.err, FetchedAt: e.fetchedAt}
}

// Subscription is one consumer's hold on a cache entry. It must be released.
type Subscription struct {
	cache *Cache
	key   Key
	entry *entry
	call  *call
	data  any

	released bool
}

func (s *Subscription) Key() Key {
	return s.key
}

// Wait blocks until the fetch this subscription joined settles or ctx ends.
// An ended ctx only detaches this waiter; the fetch keeps running for the
// other subscribers.
func (s *Subscription) Wait(ctx context.Context) (any, error) {
	s.cache.mu.Lock()
	released := s.released
	s.cache.mu.Unlock()
	if released {
		return nil, ErrReleased
	}

	if s.call == nil {
		return s.data, nil
	}
	select {
	case <-s.call.done:
		return s.call.data, s.call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Subscription) Snapshot() Result {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	return s.entry.result()
}

// Release drops the hold. Releasing the last subscriber of an in-flight fetch
// aborts it and discards whatever it returns.
func (s *Subscription) Release() {
	s.cache.release(s)
}

// Await waits on s and asserts the result type.
func Await[T any](ctx context.Context, s *Subscription) (T, error) {
	var zero T
	data, err := s.Wait(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := data.(T)
	if !ok {
		return zero, fmt.Errorf("querycache: %s holds %T", s.key.String(), data)
	}
	return v, nil
}

// Fetch subscribes, waits and releases. It suits one-shot reads.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	sub := c.Subscribe(key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	defer sub.Release()
	return Await[T](ctx, sub)
}
