package crawler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"fsindex/internal/entry"
	"fsindex/internal/logging"
	"fsindex/internal/metrics"
	"fsindex/internal/workers"
)

// Order selects the subtree traversal strategy.
type Order int

const (
	// OrderBreadth visits directories level by level (FIFO work queue).
	OrderBreadth Order = iota
	// OrderDepth descends into each subtree before its siblings (LIFO).
	OrderDepth
)

// Sink receives extracted entries. The batch pipeline implements this; it may
// block to exert backpressure.
type Sink interface {
	Upsert(ctx context.Context, e entry.Entry) error
}

// Config tunes a crawl.
type Config struct {
	// Workers is the pool size; 0 auto-detects from the host CPU count.
	Workers int
	// Order selects breadth-first or depth-first traversal.
	Order Order
	// SkipHidden skips dot-prefixed files and directories.
	SkipHidden bool
	// PathPrefix is the canonical path prefix ("" in relative path mode).
	PathPrefix string
}

// Result summarizes a completed crawl.
type Result struct {
	Files        int64
	Dirs         int64
	AccessErrors int64
	OtherErrors  int64
}

// Crawler walks a directory subtree with a fixed worker pool. Each directory
// is claimed by exactly one worker, which emits the directory's own entry,
// then its files, then schedules its subdirectories back onto the queue, so
// a parent always reaches the sink before any of its children.
type Crawler struct {
	root    string
	cfg     Config
	builder entry.Builder

	files        atomic.Int64
	dirs         atomic.Int64
	accessErrors atomic.Int64
	otherErrors  atomic.Int64
}

// New creates a Crawler for the subtree rooted at root.
func New(root string, cfg Config) *Crawler {
	if cfg.Workers < 1 {
		cfg.Workers = workers.ForIO(32)
	}
	return &Crawler{
		root:    root,
		cfg:     cfg,
		builder: entry.Builder{Prefix: cfg.PathPrefix},
	}
}

// Crawl walks the subtree, emitting every entry under the root exactly once,
// including the root's own entry. Per-item failures are logged and counted,
// never fatal; the only error returns are context cancellation and a failing
// sink.
func (c *Crawler) Crawl(ctx context.Context, sink Sink) (Result, error) {
	rootInfo, err := os.Stat(c.root)
	if err != nil {
		return Result{}, err
	}
	if !rootInfo.IsDir() {
		return Result{}, errors.New("crawl root is not a directory")
	}

	// The root's entry is emitted before workers start so directory closure
	// holds from the very first batch.
	if err := sink.Upsert(ctx, c.builder.FromFileInfo(".", rootInfo)); err != nil {
		return Result{}, err
	}
	c.dirs.Add(1)
	metrics.CrawlDirsTotal.Inc()

	q := newDirQueue(c.cfg.Order)
	q.push(".")

	var wg sync.WaitGroup
	errCh := make(chan error, c.cfg.Workers)

	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := c.worker(ctx, id, q, sink); err != nil {
				select {
				case errCh <- err:
				default:
				}
				q.shutdown()
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	result := c.result()
	if err := <-errCh; err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	logging.Debug("Crawl complete: %d files, %d dirs (access errors: %d, other: %d)",
		result.Files, result.Dirs, result.AccessErrors, result.OtherErrors)
	return result, nil
}

// worker claims directories until the queue drains or the context ends.
func (c *Crawler) worker(ctx context.Context, id int, q *dirQueue, sink Sink) error {
	logging.Debug("Crawl worker %d started", id)
	defer logging.Debug("Crawl worker %d finished", id)

	for {
		rel, ok := q.pop()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			q.done()
			q.shutdown()
			return err
		}

		err := c.scanDirectory(ctx, rel, q, sink)
		q.done()
		if err != nil {
			q.shutdown()
			return err
		}
	}
}

// scanDirectory lists one claimed directory, emits entries for its files,
// and schedules subdirectories. The directory's own entry was emitted by
// whichever scan discovered it.
func (c *Crawler) scanDirectory(ctx context.Context, rel string, q *dirQueue, sink Sink) error {
	dirPath := filepath.Join(c.root, rel)

	dirents, err := os.ReadDir(dirPath)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			logging.Warn("Access denied, skipping subtree: %s", dirPath)
			c.accessErrors.Add(1)
			metrics.CrawlErrorsTotal.WithLabelValues("access").Inc()
			return nil
		}
		logging.Warn("Error reading directory %s: %v", dirPath, err)
		c.otherErrors.Add(1)
		metrics.CrawlErrorsTotal.WithLabelValues("other").Inc()
		return nil
	}

	for _, d := range dirents {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if c.cfg.SkipHidden && strings.HasPrefix(name, ".") {
			continue
		}

		// Symlinks are skipped entirely: following them can cycle, and
		// d.Type() reports the link itself, not its target.
		if d.Type()&fs.ModeSymlink != 0 {
			continue
		}

		childRel := rel + "/" + name
		if rel == "." {
			childRel = name
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("Error getting info for %s: %v", filepath.Join(dirPath, name), err)
			c.otherErrors.Add(1)
			metrics.CrawlErrorsTotal.WithLabelValues("other").Inc()
			continue
		}

		if err := sink.Upsert(ctx, c.builder.FromFileInfo(childRel, info)); err != nil {
			return err
		}

		if d.IsDir() {
			c.dirs.Add(1)
			metrics.CrawlDirsTotal.Inc()
			q.push(childRel)
		} else {
			c.files.Add(1)
			metrics.CrawlFilesTotal.Inc()
		}
	}

	return nil
}

func (c *Crawler) result() Result {
	return Result{
		Files:        c.files.Load(),
		Dirs:         c.dirs.Load(),
		AccessErrors: c.accessErrors.Load(),
		OtherErrors:  c.otherErrors.Load(),
	}
}

// PreCount walks the subtree counting items for percentage-complete
// reporting. It is advisory only: errors shrink the count but never fail,
// and the main crawl does not depend on the result.
func (c *Crawler) PreCount(ctx context.Context) int64 {
	var count int64
	_ = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			return nil
		}
		if c.cfg.SkipHidden && strings.HasPrefix(d.Name(), ".") && path != c.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		count++
		return nil
	})
	return count
}
