package app

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/metrics"
)

const (
	SearchPath = "/search"

	paramKeyword  = "q"
	paramCategory = "category"
	paramPage     = "page"
)

// EncodeIntent renders intent as address parameters. Default values are
// left out.
func EncodeIntent(intent domain.SearchIntent) url.Values {
	intent = intent.Normalize()
	values := url.Values{}
	if intent.Keyword != "" {
		values.Set(paramKeyword, intent.Keyword)
	}
	if intent.CategoryID != domain.AllCategories {
		values.Set(paramCategory, intent.CategoryID)
	}
	if intent.Page > 1 {
		values.Set(paramPage, strconv.Itoa(intent.Page))
	}
	return values
}

// ParseIntent reads an intent from address parameters. A missing or invalid
// page reads as 1.
func ParseIntent(values url.Values) domain.SearchIntent {
	page, err := strconv.Atoi(values.Get(paramPage))
	if err != nil || page < 1 {
		page = 1
	}
	return domain.SearchIntent{
		Keyword:    values.Get(paramKeyword),
		CategoryID: values.Get(paramCategory),
		Page:       page,
	}.Normalize()
}

// Location is the canonical address of intent under path.
func Location(path string, intent domain.SearchIntent) string {
	query := EncodeIntent(intent).Encode()
	if query == "" {
		return path
	}
	return path + "?" + query
}

// ParseLocation splits an address into its path and intent.
func ParseLocation(location string) (string, domain.SearchIntent, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", domain.SearchIntent{}, fmt.Errorf("invalid location %q: %w", location, err)
	}
	path := u.Path
	if path == "" {
		path = SearchPath
	}
	return path, ParseIntent(u.Query()), nil
}

// URLSync keeps a History and a Coordinator in step. Intent changes are
// written to the history once they have settled for the commit window;
// history navigation is fed back to the coordinator.
type URLSync struct {
	coord    *Coordinator
	history  *History
	debounce time.Duration

	mu      sync.Mutex
	path    string
	timer   *time.Timer
	seq     uint64
	pending string
	minGen  uint64
	mounted bool
	closed  bool

	stopWatch func()
	done      chan struct{}
}

func NewURLSync(coord *Coordinator, history *History, debounce time.Duration) *URLSync {
	return &URLSync{
		coord:    coord,
		history:  history,
		debounce: debounce,
		path:     SearchPath,
		done:     make(chan struct{}),
	}
}

// Mount reads the initial address, rewrites it in canonical form and starts
// the coordinator with it.
func (u *URLSync) Mount(location string) error {
	path, intent, err := ParseLocation(location)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.mounted || u.closed {
		return fmt.Errorf("url sync already mounted")
	}
	u.mounted = true
	u.path = path

	ch, stop := u.coord.Watch()
	u.stopWatch = stop
	go u.loop(ch)

	u.coord.Start(intent)
	// The coordinator may clamp the page, so the address follows what it applied.
	snap := u.coord.Snapshot()
	u.history.Replace(Location(path, snap.Intent))
	u.minGen = snap.Generation
	return nil
}

// Navigated tells the synchronizer the address changed outside of it, from
// back/forward or a followed link. Any pending commit is dropped.
func (u *URLSync) Navigated(location string) error {
	_, intent, err := ParseLocation(location)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.cancelPendingLocked()
	u.coord.SetIntent(intent)
	u.minGen = u.coord.Snapshot().Generation
	return nil
}

// Pending returns the address waiting to be committed, if any.
func (u *URLSync) Pending() (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pending, u.pending != ""
}

// Flush commits a pending address immediately.
func (u *URLSync) Flush() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pending == "" {
		return
	}
	target := u.pending
	u.cancelPendingLocked()
	u.commitLocked(target)
}

func (u *URLSync) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	u.cancelPendingLocked()
	stop := u.stopWatch
	mounted := u.mounted
	u.mu.Unlock()

	if stop != nil {
		stop()
	}
	if mounted {
		<-u.done
	}
}

func (u *URLSync) loop(ch <-chan Snapshot) {
	defer close(u.done)
	for snap := range ch {
		u.observe(snap)
	}
}

func (u *URLSync) observe(snap Snapshot) {
	if snap.State == StateIdle {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || snap.Generation < u.minGen {
		return
	}

	target := Location(u.path, snap.Intent)
	if target == u.history.Location() {
		u.cancelPendingLocked()
		return
	}
	if target == u.pending {
		return
	}
	if u.debounce <= 0 {
		u.cancelPendingLocked()
		u.commitLocked(target)
		return
	}

	u.cancelPendingLocked()
	seq := u.seq
	u.pending = target
	u.timer = time.AfterFunc(u.debounce, func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.closed || u.seq != seq {
			return
		}
		u.timer = nil
		u.pending = ""
		u.commitLocked(target)
	})
}

func (u *URLSync) commitLocked(target string) {
	if target == u.history.Location() {
		return
	}
	u.history.Push(target)
	metrics.URLCommits.Inc()
}

func (u *URLSync) cancelPendingLocked() {
	u.seq++
	u.pending = ""
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
}
