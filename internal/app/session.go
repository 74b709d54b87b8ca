package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/metrics"
	"github.com/NewsDiscover/internal/infra/querycache"
	"github.com/google/uuid"
)

type SessionConfig struct {
	PageSize        int
	MaxPages        int
	SortBy          string
	KeywordDebounce time.Duration
	CommitDebounce  time.Duration
	TTL             time.Duration
}

// Session is one mounted search view: a coordinator, its address history and
// the synchronizer between them.
type Session struct {
	ID          string
	CreatedAt   time.Time
	Coordinator *Coordinator
	History     *History
	URL         *URLSync

	mu       sync.Mutex
	lastSeen time.Time
}

// Back moves one entry back in history. It reports false at the oldest entry.
func (s *Session) Back() (string, bool, error) {
	s.URL.Flush()
	location, ok := s.History.Back()
	if !ok {
		return location, false, nil
	}
	return location, true, s.URL.Navigated(location)
}

// Forward moves one entry forward in history.
func (s *Session) Forward() (string, bool, error) {
	location, ok := s.History.Forward()
	if !ok {
		return location, false, nil
	}
	return location, true, s.URL.Navigated(location)
}

// Navigate follows a link to location, adding a history entry.
func (s *Session) Navigate(location string) (string, error) {
	path, intent, err := ParseLocation(location)
	if err != nil {
		return "", err
	}
	canonical := Location(path, intent)
	s.URL.Flush()
	if canonical != s.History.Location() {
		s.History.Push(canonical)
	}
	return canonical, s.URL.Navigated(canonical)
}

func (s *Session) Close() {
	s.URL.Close()
	s.Coordinator.Close()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionManager owns the mounted search sessions and unmounts the ones left
// idle for longer than the TTL.
type SessionManager struct {
	api      domain.NewsAPI
	cache    *querycache.Cache
	resolver *CategoryResolver
	events   domain.EventProducer
	cfg      SessionConfig
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(api domain.NewsAPI, cache *querycache.Cache, resolver *CategoryResolver, events domain.EventProducer, cfg SessionConfig) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &SessionManager{
		api:      api,
		cache:    cache,
		resolver: resolver,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create mounts a new session on location.
func (m *SessionManager) Create(location string) (*Session, error) {
	id := uuid.NewString()
	coord := NewCoordinator(m.api, m.cache, m.resolver, m.events, CoordinatorConfig{
		SessionID:       id,
		PageSize:        m.cfg.PageSize,
		MaxPages:        m.cfg.MaxPages,
		SortBy:          m.cfg.SortBy,
		KeywordDebounce: m.cfg.KeywordDebounce,
	})
	history := NewHistory(SearchPath)
	urlSync := NewURLSync(coord, history, m.cfg.CommitDebounce)
	if err := urlSync.Mount(location); err != nil {
		coord.Close()
		return nil, err
	}

	now := m.now()
	session := &Session{
		ID:          id,
		CreatedAt:   now,
		Coordinator: coord,
		History:     history,
		URL:         urlSync,
		lastSeen:    now,
	}

	m.mu.Lock()
	m.sessions[id] = session
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	slog.Info("Search session mounted", "session", id, "location", history.Location())
	return session, nil
}

// Get returns the session and marks it as used.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		session.touch(m.now())
	}
	return session, ok
}

// Delete unmounts a session.
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if ok {
		session.Close()
		slog.Info("Search session unmounted", "session", id)
	}
	return ok
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start runs the idle session janitor until ctx is done.
func (m *SessionManager) Start(ctx context.Context) {
	interval := m.cfg.TTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expire()
			}
		}
	}()
}

// Close unmounts every session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	metrics.ActiveSessions.Set(0)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *SessionManager) expire() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) >= m.cfg.TTL {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		slog.Info("Search session expired", "session", s.ID)
	}
}

// Search runs intent through a short-lived coordinator and returns the
// settled snapshot. It shares the cache and resolver with the sessions.
func (m *SessionManager) Search(ctx context.Context, intent domain.SearchIntent) (Snapshot, error) {
	coord := NewCoordinator(m.api, m.cache, m.resolver, m.events, CoordinatorConfig{
		SessionID: "oneshot-" + uuid.NewString(),
		PageSize:  m.cfg.PageSize,
		MaxPages:  m.cfg.MaxPages,
		SortBy:    m.cfg.SortBy,
	})
	defer coord.Close()

	coord.Start(intent)
	return coord.WaitSettled(ctx)
}
