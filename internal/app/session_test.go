package app

import (
	"context"
	"testing"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, api domain.NewsAPI, cfg SessionConfig) *SessionManager {
	t.Helper()
	cache := newTestCache(t)
	resolver := NewCategoryResolver(api, cache, domain.DefaultCatalog(), nil)
	m := NewSessionManager(api, cache, resolver, nil, cfg)
	t.Cleanup(m.Close)
	return m
}

func TestSessionManager_Lifecycle(t *testing.T) {
	m := newTestManager(t, newFakeAPI(), SessionConfig{})

	s, err := m.Create("/search?q=ai&category=technology")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "/search?category=technology&q=ai", s.History.Location())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Len())

	snap, err := s.Coordinator.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, snap.State)

	assert.True(t, m.Delete(s.ID))
	assert.False(t, m.Delete(s.ID))
	_, ok = m.Get(s.ID)
	assert.False(t, ok)
}

func TestSessionManager_InvalidLocation(t *testing.T) {
	m := newTestManager(t, newFakeAPI(), SessionConfig{})

	_, err := m.Create("%zz")
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestSessionManager_ExpiresIdleSessions(t *testing.T) {
	m := newTestManager(t, newFakeAPI(), SessionConfig{TTL: time.Minute})
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle, err := m.Create("/search")
	require.NoError(t, err)
	active, err := m.Create("/search?q=x")
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	m.Get(active.ID)

	now = now.Add(20 * time.Second)
	m.expire()

	_, ok := m.Get(idle.ID)
	assert.False(t, ok)
	_, ok = m.Get(active.ID)
	assert.True(t, ok)
}

func TestSession_BackForwardAndNavigate(t *testing.T) {
	m := newTestManager(t, newFakeAPI(), SessionConfig{CommitDebounce: time.Hour})

	s, err := m.Create("/search?q=ai")
	require.NoError(t, err)

	s.Coordinator.SetPage(2)
	require.Eventually(t, func() bool { _, ok := s.URL.Pending(); return ok }, time.Second, time.Millisecond)

	// Back flushes the pending entry first, so it returns to where the user started.
	loc, moved, err := s.Back()
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, "/search?q=ai", loc)
	assert.Equal(t, 1, s.Coordinator.Snapshot().Intent.Page)

	loc, moved, err = s.Forward()
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, "/search?page=2&q=ai", loc)
	assert.Equal(t, 2, s.Coordinator.Snapshot().Intent.Page)

	loc, err = s.Navigate("/search?category=Sports")
	require.NoError(t, err)
	assert.Equal(t, "/search?category=sports", loc)
	assert.Equal(t, domain.SearchIntent{CategoryID: "sports", Page: 1}, s.Coordinator.Snapshot().Intent)

	entries, index := s.History.Entries()
	assert.Equal(t, []string{"/search?q=ai", "/search?page=2&q=ai", "/search?category=sports"}, entries)
	assert.Equal(t, 2, index)
}

func TestSessionManager_Search(t *testing.T) {
	api := newFakeAPI()
	m := newTestManager(t, api, SessionConfig{PageSize: 12})

	snap, err := m.Search(context.Background(), domain.SearchIntent{Keyword: "ai", CategoryID: "technology", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, []string{"suggest:Technology", "search:ai|dmoz/Computers|2"}, api.Calls())
	assert.Equal(t, 0, m.Len())
}
