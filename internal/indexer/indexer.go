package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"fsindex/internal/crawler"
	"fsindex/internal/entry"
	"fsindex/internal/logging"
	"fsindex/internal/metrics"
	"fsindex/internal/pipeline"
	"fsindex/internal/store"
)

// ErrBuildInProgress is returned when Build is called while another build is
// still running.
var ErrBuildInProgress = errors.New("a build is already in progress")

// Config tunes the indexer.
type Config struct {
	// Workers sizes the crawl pool; 0 auto-detects.
	Workers int
	// Order is the traversal order.
	Order crawler.Order
	// SkipHidden skips dot-prefixed paths.
	SkipHidden bool
	// PathPrefix is the canonical path prefix ("" in relative path mode).
	PathPrefix string
	// PathMode is the configured path storage mode, recorded in metadata
	// and compared against it to detect drift.
	PathMode string
	// PreCount enables the advisory pre-pass that estimates total items
	// for percentage-complete reporting.
	PreCount bool
}

// Progress is a point-in-time snapshot of build state.
type Progress struct {
	Building      bool      `json:"building"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	FilesIndexed  int64     `json:"filesIndexed"`
	DirsIndexed   int64     `json:"dirsIndexed"`
	TotalEstimate int64     `json:"totalEstimate,omitempty"`
	Errors        int64     `json:"errors"`
}

// PercentComplete derives a 0-100 completion estimate from the advisory
// pre-count. Returns 0 when no estimate exists.
func (p Progress) PercentComplete() float64 {
	if p.TotalEstimate <= 0 {
		return 0
	}
	pct := float64(p.FilesIndexed+p.DirsIndexed) / float64(p.TotalEstimate) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Indexer runs full builds of the index. All writes go through the batch
// pipeline; the indexer itself only touches the store for the generation
// boundary and metadata.
type Indexer struct {
	root string
	st   *store.Store
	pipe *pipeline.Pipeline
	cfg  Config

	mu        sync.Mutex
	building  bool
	startedAt time.Time

	filesIndexed  atomic.Int64
	dirsIndexed   atomic.Int64
	totalEstimate atomic.Int64
	buildErrors   atomic.Int64
}

// New creates an Indexer for the subtree rooted at root.
func New(root string, st *store.Store, pipe *pipeline.Pipeline, cfg Config) *Indexer {
	return &Indexer{root: root, st: st, pipe: pipe, cfg: cfg}
}

// Progress returns the current build progress. Valid at any time, including
// between builds, when it reports the last build's tallies.
func (x *Indexer) Progress() Progress {
	x.mu.Lock()
	building := x.building
	startedAt := x.startedAt
	x.mu.Unlock()

	return Progress{
		Building:      building,
		StartedAt:     startedAt,
		FilesIndexed:  x.filesIndexed.Load(),
		DirsIndexed:   x.dirsIndexed.Load(),
		TotalEstimate: x.totalEstimate.Load(),
		Errors:        x.buildErrors.Load(),
	}
}

// Building reports whether a build is currently running.
func (x *Indexer) Building() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.building
}

// Build runs a full index build. Without force it is a no-op when a complete
// index for the same root and path mode already exists. Stored configuration
// drift (different root or path mode) always forces a rebuild.
//
// Cancellation stops crawl scheduling and flushes in-flight batches; the
// completion marker is only written after a fully successful crawl, so an
// interrupted build reads as "not built" on restart.
func (x *Indexer) Build(ctx context.Context, force bool) error {
	info, err := os.Stat(x.root)
	if err != nil {
		return fmt.Errorf("root path unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path is not a directory: %s", x.root)
	}

	if drift, reason := x.configDrift(ctx); drift {
		logging.Warn("Configuration drift detected (%s), forcing full rebuild", reason)
		force = true
	}

	if !force {
		if lastBuilt, err := x.st.LastBuilt(ctx); err == nil && !lastBuilt.IsZero() {
			logging.Info("Index already built at %s; skipping (use force to rebuild)",
				lastBuilt.Format(time.RFC3339))
			return nil
		}
	}

	if err := x.tryStart(); err != nil {
		return err
	}
	defer x.finish()

	metrics.BuildRunsTotal.Inc()
	metrics.BuildRunning.Set(1)
	defer metrics.BuildRunning.Set(0)
	start := time.Now()

	logging.Info("Starting full index build of %s", x.root)

	// Generation boundary: wipe entries and the completion marker in one
	// transaction, then record the configuration this build runs under.
	// From here until SetLastBuilt the index reads as "building."
	if err := x.st.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if err := x.st.SetMetadata(ctx, store.MetaIndexedRoot, x.root); err != nil {
		return err
	}
	if err := x.st.SetMetadata(ctx, store.MetaPathMode, x.cfg.PathMode); err != nil {
		return err
	}

	c := crawler.New(x.root, crawler.Config{
		Workers:    x.cfg.Workers,
		Order:      x.cfg.Order,
		SkipHidden: x.cfg.SkipHidden,
		PathPrefix: x.cfg.PathPrefix,
	})

	if x.cfg.PreCount {
		countCtx, cancelCount := context.WithCancel(ctx)
		defer cancelCount()
		go func() {
			if n := c.PreCount(countCtx); n > 0 {
				x.totalEstimate.Store(n)
			}
		}()
	}

	result, err := c.Crawl(ctx, countingSink{idx: x, pipe: x.pipe})
	x.buildErrors.Store(result.AccessErrors + result.OtherErrors)

	if err != nil {
		// Flush what already made it into the queue so the halfway state
		// is at least consistent, then bail without the completion marker.
		flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if ferr := x.pipe.Flush(flushCtx); ferr != nil {
			logging.Warn("Flush after aborted build failed: %v", ferr)
		}
		return fmt.Errorf("build aborted: %w", err)
	}

	if err := x.pipe.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush final batches: %w", err)
	}

	completed := time.Now()
	if err := x.st.SetLastBuilt(ctx, completed); err != nil {
		return fmt.Errorf("failed to record build completion: %w", err)
	}

	elapsed := time.Since(start)
	metrics.BuildLastRunTimestamp.Set(float64(completed.Unix()))
	metrics.BuildLastRunDuration.Set(elapsed.Seconds())

	logging.Info("Index build complete in %s: %d files, %d dirs (%d errors)",
		elapsed.Round(time.Millisecond), result.Files, result.Dirs,
		result.AccessErrors+result.OtherErrors)
	return nil
}

// configDrift compares the stored build configuration against the current
// one. An empty store (no metadata) is not drift.
func (x *Indexer) configDrift(ctx context.Context) (bool, string) {
	storedRoot, err := x.st.IndexedRoot(ctx)
	if err == nil && storedRoot != "" && storedRoot != x.root {
		return true, fmt.Sprintf("indexed root was %s, now %s", storedRoot, x.root)
	}
	storedMode, err := x.st.PathMode(ctx)
	if err == nil && storedMode != "" && storedMode != x.cfg.PathMode {
		return true, fmt.Sprintf("path mode was %s, now %s", storedMode, x.cfg.PathMode)
	}
	return false, ""
}

func (x *Indexer) tryStart() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.building {
		return ErrBuildInProgress
	}
	x.building = true
	x.startedAt = time.Now()
	x.filesIndexed.Store(0)
	x.dirsIndexed.Store(0)
	x.totalEstimate.Store(0)
	x.buildErrors.Store(0)
	return nil
}

func (x *Indexer) finish() {
	x.mu.Lock()
	x.building = false
	x.mu.Unlock()
}

// countingSink forwards crawl output to the pipeline while tallying progress.
type countingSink struct {
	idx  *Indexer
	pipe *pipeline.Pipeline
}

func (s countingSink) Upsert(ctx context.Context, e entry.Entry) error {
	if e.IsDir {
		s.idx.dirsIndexed.Add(1)
	} else {
		s.idx.filesIndexed.Add(1)
	}
	return s.pipe.Upsert(ctx, e)
}
