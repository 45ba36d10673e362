package monitor

import (
	"sync"
	"time"
)

const (
	// debouncePruneThreshold is the cache size past which stale timestamps
	// are swept out.
	debouncePruneThreshold = 4096
	// debounceMaxAge is how long a timestamp may linger before a sweep
	// drops it.
	debounceMaxAge = 5 * time.Minute
)

type eventKey struct {
	path string
	kind EventKind
}

// debouncer suppresses repeat events for the same (path, kind) inside a short
// window. Only the first event of a burst passes; the window restarts when an
// event passes, not on every arrival, so a steady trickle still gets through
// once per window.
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[eventKey]time.Time
	now    func() time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		seen:   make(map[eventKey]time.Time),
		now:    time.Now,
	}
}

// allow reports whether the event should be processed. Suppressed events are
// dropped entirely; the caller only counts them.
func (d *debouncer) allow(path string, kind EventKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := eventKey{path: path, kind: kind}

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[key] = now

	if len(d.seen) > debouncePruneThreshold {
		d.prune(now)
	}
	return true
}

// prune drops stale timestamps. Called under the lock.
func (d *debouncer) prune(now time.Time) {
	for key, t := range d.seen {
		if now.Sub(t) > debounceMaxAge {
			delete(d.seen, key)
		}
	}
}

// childActivity remembers when each directory last had a child event. A
// directory "modified" notification often fires only because a child changed;
// if that child's own event was seen recently, the parent event carries no
// new information beyond refreshed directory metadata.
type childActivity struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newChildActivity(window time.Duration) *childActivity {
	return &childActivity{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// record notes a child event under parent.
func (a *childActivity) record(parent string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.last[parent] = now

	if len(a.last) > debouncePruneThreshold {
		for p, t := range a.last {
			if now.Sub(t) > a.window {
				delete(a.last, p)
			}
		}
	}
}

// recent reports whether a child event was seen under parent within the
// aggregation window.
func (a *childActivity) recent(parent string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.last[parent]
	return ok && a.now().Sub(t) < a.window
}
