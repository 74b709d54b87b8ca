package logging

import (
	"sync"
	"time"
)

// Sampler reduces log noise for errors that repeat in bursts, such as a
// provider outage. The first occurrence of a key in each window is allowed;
// later ones are counted and reported with the next allowed occurrence.
type Sampler struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	buckets map[string]*bucket
}

type bucket struct {
	openedAt   time.Time
	suppressed int
}

// NewSampler creates a sampler that lets one occurrence per key through per window.
func NewSampler(window time.Duration) *Sampler {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Sampler{
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether an occurrence of key should be logged. When it
// returns true, suppressed is the number of occurrences dropped since the
// previous allowed one.
func (s *Sampler) Allow(key string) (ok bool, suppressed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, found := s.buckets[key]
	if !found || now.Sub(b.openedAt) >= s.window {
		if found {
			suppressed = b.suppressed
		}
		s.buckets[key] = &bucket{openedAt: now}
		return true, suppressed
	}
	b.suppressed++
	return false, 0
}

// Reset forgets a key, e.g. once the failing dependency recovered.
func (s *Sampler) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
}
