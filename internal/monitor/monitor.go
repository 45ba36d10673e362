package monitor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fsindex/internal/crawler"
	"fsindex/internal/entry"
	"fsindex/internal/logging"
	"fsindex/internal/metrics"
	"fsindex/internal/pipeline"
	"fsindex/internal/store"
)

// EventKind classifies a raw filesystem notification.
type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventDeleted
	EventRenamed
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	}
	return "unknown"
}

// Config tunes the monitor.
type Config struct {
	// Debounce is the per-(path, kind) suppression window.
	Debounce time.Duration
	// AggregationWindow is how long child activity shields a parent
	// directory's own "modified" events from triggering a rescan.
	AggregationWindow time.Duration
	// ReconcileInterval is the period of the drift-detection sweep;
	// 0 disables it.
	ReconcileInterval time.Duration
	// SkipHidden skips dot-prefixed paths, matching the crawl.
	SkipHidden bool
	// PathPrefix is the canonical path prefix ("" in relative path mode).
	PathPrefix string
	// CrawlWorkers sizes the pool used to index newly created subtrees.
	CrawlWorkers int
	// Order is the traversal order for subtree indexing.
	Order crawler.Order
}

// Monitor watches the indexed subtree and feeds reconciling updates into the
// batch pipeline. It never writes to the store directly, so live updates are
// sequenced with any concurrent rebuild instead of racing the writer.
type Monitor struct {
	root string
	st   *store.Store
	pipe *pipeline.Pipeline
	cfg  Config

	builder  entry.Builder
	deb      *debouncer
	activity *childActivity

	mu      sync.Mutex
	started bool
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// reconcile snapshot, touched only by the reconcile goroutine after
	// Start seeds it.
	snap snapshot
}

// New creates a Monitor for the subtree rooted at root. Start must be called
// before events are processed.
func New(root string, st *store.Store, pipe *pipeline.Pipeline, cfg Config) *Monitor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.AggregationWindow <= 0 {
		cfg.AggregationWindow = 2 * time.Second
	}
	return &Monitor{
		root:     root,
		st:       st,
		pipe:     pipe,
		cfg:      cfg,
		builder:  entry.Builder{Prefix: cfg.PathPrefix},
		deb:      newDebouncer(cfg.Debounce),
		activity: newChildActivity(cfg.AggregationWindow),
	}
}

// Start registers watches over the whole subtree and begins processing
// events. It returns once watching is active; processing continues in the
// background until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("monitor already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := m.addWatchRecursive(watcher, m.root); err != nil {
		watcher.Close()
		return err
	}

	m.snap = m.takeSnapshot()

	ctx, cancel := context.WithCancel(ctx)
	m.watcher = watcher
	m.cancel = cancel
	m.started = true

	m.wg.Add(1)
	go m.loop(ctx, watcher)

	if m.cfg.ReconcileInterval > 0 {
		m.wg.Add(1)
		go m.reconcileLoop(ctx)
	}

	logging.Info("Monitoring %s for changes (debounce %s, aggregation %s)",
		m.root, m.cfg.Debounce, m.cfg.AggregationWindow)
	return nil
}

// Stop shuts the monitor down and waits for in-flight event handling to
// finish. The monitor can be started again afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.watcher.Close()
	m.started = false
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info("Monitor stopped")
}

// loop consumes raw notifications. Events are handled serially: ordering
// between dependent events (a delete then re-create, say) matters more than
// handler parallelism, and the heavy lifting happens in the pipeline anyway.
func (m *Monitor) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			m.dispatch(ctx, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Watcher error: %v", err)
		}
	}
}

// dispatch maps one raw notification onto the event kinds and runs the
// handler for each. A single notification can carry multiple bits.
func (m *Monitor) dispatch(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		m.handleEvent(ctx, ev.Name, EventCreated)
	case ev.Op.Has(fsnotify.Write):
		m.handleEvent(ctx, ev.Name, EventModified)
	case ev.Op.Has(fsnotify.Remove):
		m.handleEvent(ctx, ev.Name, EventDeleted)
	case ev.Op.Has(fsnotify.Rename):
		m.handleEvent(ctx, ev.Name, EventRenamed)
	}
	// Chmod is ignored: attribute churn (archivers, backup tools) would
	// otherwise flood the pipeline with no-op upserts.
}

func (m *Monitor) handleEvent(ctx context.Context, absPath string, kind EventKind) {
	rel, err := filepath.Rel(m.root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if m.cfg.SkipHidden && hasHiddenComponent(rel) {
		return
	}

	if !m.deb.allow(rel, kind) {
		metrics.EventsSuppressed.Inc()
		return
	}
	metrics.EventsReceived.WithLabelValues(kind.String()).Inc()
	logging.Debug("Event %s: %s", kind, rel)

	switch kind {
	case EventCreated, EventModified:
		m.handleUpsert(ctx, rel, kind)
	case EventDeleted, EventRenamed:
		// A rename notification names the old path; the new path arrives
		// as a separate create. Both reduce to "this path is gone."
		m.handleRemoved(ctx, rel)
		m.recordParentActivity(rel)
	}
}

func (m *Monitor) handleUpsert(ctx context.Context, rel string, kind EventKind) {
	absPath := filepath.Join(m.root, rel)

	info, err := os.Lstat(absPath)
	if err != nil {
		// Vanished between notification and stat. Treated as a deletion.
		m.handleRemoved(ctx, rel)
		m.recordParentActivity(rel)
		return
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return
	}

	if !info.IsDir() {
		if err := m.pipe.Upsert(ctx, m.builder.FromFileInfo(rel, info)); err != nil {
			logging.Warn("Failed to enqueue update for %s: %v", rel, err)
		}
		m.recordParentActivity(rel)
		return
	}

	if kind == EventCreated {
		m.indexSubtree(ctx, rel)
		m.recordParentActivity(rel)
		return
	}

	// Modified on a directory. Recent child activity means this is the
	// side effect of a child event already handled; refresh the directory's
	// own metadata and stop there. Otherwise the change is untracked and
	// the immediate children need a scoped rescan.
	canonical := m.builder.Canonical(rel)
	if m.activity.recent(canonical) {
		metrics.EventsCoalesced.Inc()
		if err := m.pipe.Upsert(ctx, m.builder.FromFileInfo(rel, info)); err != nil {
			logging.Warn("Failed to enqueue update for %s: %v", rel, err)
		}
		return
	}
	m.rescanChildren(ctx, rel, "parent_event")
}

// handleRemoved deletes whatever the index holds at rel: the whole subtree if
// the store recorded a directory there, a single entry otherwise.
func (m *Monitor) handleRemoved(ctx context.Context, rel string) {
	canonical := m.builder.Canonical(rel)

	e, err := m.st.Get(ctx, canonical)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Warn("Lookup failed for %s: %v", canonical, err)
			return
		}
		// Not committed is not the same as not indexed: an upsert for this
		// path may still sit in the pipeline queue, and skipping here would
		// let it land as a ghost row. A subtree delete covers both the file
		// and the directory case, is a no-op on an untracked path, and FIFO
		// order sequences it after any pending upsert.
		if err := m.pipe.DeleteTree(ctx, canonical); err != nil {
			logging.Warn("Failed to enqueue delete for %s: %v", canonical, err)
		}
		return
	}

	if e.IsDir {
		if err := m.pipe.DeleteTree(ctx, canonical); err != nil {
			logging.Warn("Failed to enqueue subtree delete for %s: %v", canonical, err)
		}
		return
	}
	if err := m.pipe.Delete(ctx, canonical); err != nil {
		logging.Warn("Failed to enqueue delete for %s: %v", canonical, err)
	}
}

// indexSubtree indexes a newly appeared directory recursively and registers
// watches over it, since a directory created and populated in one burst (an
// unpacked archive, a moved-in tree) may never emit per-child notifications.
func (m *Monitor) indexSubtree(ctx context.Context, rel string) {
	absPath := filepath.Join(m.root, rel)

	info, err := os.Stat(absPath)
	if err != nil {
		m.handleRemoved(ctx, rel)
		return
	}

	// The directory's own entry first, with its real parent. The subtree
	// crawl below roots its path building at this directory, so its root
	// entry would carry the wrong parent and is skipped instead.
	if err := m.pipe.Upsert(ctx, m.builder.FromFileInfo(rel, info)); err != nil {
		logging.Warn("Failed to enqueue update for %s: %v", rel, err)
		return
	}

	canonical := m.builder.Canonical(rel)
	c := crawler.New(absPath, crawler.Config{
		Workers:    m.cfg.CrawlWorkers,
		Order:      m.cfg.Order,
		SkipHidden: m.cfg.SkipHidden,
		PathPrefix: canonical,
	})

	result, err := c.Crawl(ctx, subtreeSink{base: canonical, pipe: m.pipe})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("Subtree index of %s failed: %v", rel, err)
	}
	logging.Debug("Indexed new subtree %s: %d files, %d dirs", rel, result.Files, result.Dirs)

	m.mu.Lock()
	watcher := m.watcher
	started := m.started
	m.mu.Unlock()
	if started {
		if err := m.addWatchRecursive(watcher, absPath); err != nil {
			logging.Warn("Failed to watch new subtree %s: %v", rel, err)
		}
	}
}

// subtreeSink forwards crawl output to the pipeline, dropping the crawl's own
// root entry (already enqueued by the caller with the correct parent path).
type subtreeSink struct {
	base string
	pipe *pipeline.Pipeline
}

func (s subtreeSink) Upsert(ctx context.Context, e entry.Entry) error {
	if e.Path == s.base {
		return nil
	}
	return s.pipe.Upsert(ctx, e)
}

// rescanChildren reconciles one directory's immediate children against the
// filesystem: refresh what exists, index what is new, delete what is gone.
// It never recurses into existing subdirectories; only unindexed ones get a
// full subtree index.
func (m *Monitor) rescanChildren(ctx context.Context, rel string, trigger string) {
	metrics.RescanTotal.WithLabelValues(trigger).Inc()
	absPath := filepath.Join(m.root, rel)
	canonical := m.builder.Canonical(rel)

	info, err := os.Stat(absPath)
	if err != nil {
		m.handleRemoved(ctx, rel)
		return
	}
	if err := m.pipe.Upsert(ctx, m.builder.FromFileInfo(rel, info)); err != nil {
		logging.Warn("Failed to enqueue update for %s: %v", rel, err)
		return
	}

	dirents, err := os.ReadDir(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			logging.Warn("Access denied rescanning %s", absPath)
			return
		}
		m.handleRemoved(ctx, rel)
		return
	}

	onDisk := make(map[string]bool, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if m.cfg.SkipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if d.Type()&fs.ModeSymlink != 0 {
			continue
		}
		onDisk[name] = true

		childRel := filepath.Join(rel, name)
		childCanonical := m.builder.Canonical(childRel)

		if d.IsDir() {
			if _, err := m.st.Get(ctx, childCanonical); errors.Is(err, store.ErrNotFound) {
				m.indexSubtree(ctx, childRel)
				continue
			}
		}

		childInfo, err := d.Info()
		if err != nil {
			continue
		}
		if err := m.pipe.Upsert(ctx, m.builder.FromFileInfo(childRel, childInfo)); err != nil {
			logging.Warn("Failed to enqueue update for %s: %v", childRel, err)
			return
		}
	}

	indexed, err := m.st.ChildPaths(ctx, canonical)
	if err != nil {
		logging.Warn("Failed to list indexed children of %s: %v", canonical, err)
		return
	}
	for _, ref := range indexed {
		if onDisk[ref.Name] {
			continue
		}
		if ref.IsDir {
			if err := m.pipe.DeleteTree(ctx, ref.Path); err != nil {
				logging.Warn("Failed to enqueue subtree delete for %s: %v", ref.Path, err)
			}
		} else {
			if err := m.pipe.Delete(ctx, ref.Path); err != nil {
				logging.Warn("Failed to enqueue delete for %s: %v", ref.Path, err)
			}
		}
	}
}

// recordParentActivity marks rel's parent as having recent child activity, so
// the parent's trailing "modified" notification coalesces instead of
// triggering a redundant rescan.
func (m *Monitor) recordParentActivity(rel string) {
	parent := filepath.Dir(rel)
	m.activity.record(m.builder.Canonical(parent))
}

// addWatchRecursive registers path and every subdirectory under it with the
// watcher. Inaccessible directories are skipped with a warning, matching
// crawl semantics.
func (m *Monitor) addWatchRecursive(watcher *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Cannot watch %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if m.cfg.SkipHidden && p != path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			logging.Warn("Cannot watch %s: %v", p, err)
			return filepath.SkipDir
		}
		return nil
	})
}

func hasHiddenComponent(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
