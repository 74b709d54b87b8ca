package app

import "sync"

// History is an in-memory navigable address stack, the server side stand-in
// for a browser's session history.
type History struct {
	mu      sync.Mutex
	entries []string
	index   int
}

func NewHistory(initial string) *History {
	return &History{entries: []string{initial}}
}

// Push adds a new entry after the current one and drops any forward entries.
func (h *History) Push(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], location)
	h.index++
}

// Replace overwrites the current entry.
func (h *History) Replace(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.index] = location
}

func (h *History) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return h.entries[0], false
	}
	h.index--
	return h.entries[h.index], true
}

func (h *History) Forward() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == len(h.entries)-1 {
		return h.entries[h.index], false
	}
	h.index++
	return h.entries[h.index], true
}

func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Entries returns a copy of the stack and the current position.
func (h *History) Entries() ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out, h.index
}
