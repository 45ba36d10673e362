package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fsindex/internal/entry"
	"fsindex/internal/filetypes"
	"fsindex/internal/pipeline"
	"fsindex/internal/store"
)

func newTestIndexer(t *testing.T, root string, cfg Config) (*Indexer, *store.Store) {
	t.Helper()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	pipe := pipeline.New(st, pipeline.Config{})
	t.Cleanup(func() {
		pipe.Close()
		st.Close()
	})

	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.PathMode == "" {
		cfg.PathMode = "relative"
	}
	return New(root, st, pipe, cfg), st
}

func populate(t *testing.T, root string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"a.txt", "sub/b.jpg"} {
		if err := os.WriteFile(filepath.Join(root, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildEmptyRoot(t *testing.T) {
	t.Parallel()

	// The smallest possible build: an empty directory still produces the
	// root's own entry and a completion marker.
	root := t.TempDir()
	x, st := newTestIndexer(t, root, Config{})
	ctx := context.Background()

	if err := x.Build(ctx, false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1 (the root entry)", count)
	}

	rootEntry, err := st.Get(ctx, "")
	if err != nil {
		t.Fatalf("root entry missing: %v", err)
	}
	if !rootEntry.IsRoot() || !rootEntry.IsDir {
		t.Errorf("root entry = %+v", rootEntry)
	}

	lastBuilt, err := st.LastBuilt(ctx)
	if err != nil || lastBuilt.IsZero() {
		t.Errorf("LastBuilt = %v, %v; want a completion timestamp", lastBuilt, err)
	}
	if storedRoot, _ := st.IndexedRoot(ctx); storedRoot != root {
		t.Errorf("IndexedRoot = %q, want %q", storedRoot, root)
	}
	if mode, _ := st.PathMode(ctx); mode != "relative" {
		t.Errorf("PathMode = %q", mode)
	}
}

func TestBuildIndexesTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	populate(t, root)
	x, st := newTestIndexer(t, root, Config{})
	ctx := context.Background()

	if err := x.Build(ctx, false); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"", "a.txt", "sub", "sub/b.jpg"} {
		if _, err := st.Get(ctx, path); err != nil {
			t.Errorf("entry %q missing after build: %v", path, err)
		}
	}

	p := x.Progress()
	if p.Building {
		t.Error("Building still true after completion")
	}
	if p.FilesIndexed != 2 || p.DirsIndexed != 2 {
		t.Errorf("progress = %d files, %d dirs; want 2 and 2", p.FilesIndexed, p.DirsIndexed)
	}
}

func TestBuildNoOpWithoutForce(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	populate(t, root)
	x, st := newTestIndexer(t, root, Config{})
	ctx := context.Background()

	if err := x.Build(ctx, false); err != nil {
		t.Fatal(err)
	}
	firstBuilt, _ := st.LastBuilt(ctx)

	// A second run on a complete index must not rebuild.
	if err := x.Build(ctx, false); err != nil {
		t.Fatal(err)
	}
	secondBuilt, _ := st.LastBuilt(ctx)

	if !secondBuilt.Equal(firstBuilt) {
		t.Errorf("build without force rebuilt: %v -> %v", firstBuilt, secondBuilt)
	}
}

func TestBuildForceRebuilds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	populate(t, root)
	x, st := newTestIndexer(t, root, Config{})
	ctx := context.Background()

	if err := x.Build(ctx, false); err != nil {
		t.Fatal(err)
	}

	// The tree changed; only a forced run picks it up.
	if err := os.WriteFile(filepath.Join(root, "late.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := x.Build(ctx, true); err != nil {
		t.Fatal(err)
	}

	if _, err := st.Get(ctx, "late.txt"); err != nil {
		t.Errorf("forced rebuild missed new file: %v", err)
	}
}

func TestBuildIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	populate(t, root)
	x, st := newTestIndexer(t, root, Config{})
	ctx := context.Background()

	if err := x.Build(ctx, true); err != nil {
		t.Fatal(err)
	}
	first, err := st.CalculateStats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := x.Build(ctx, true); err != nil {
		t.Fatal(err)
	}
	second, err := st.CalculateStats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if first.TotalEntries != second.TotalEntries ||
		first.TotalFiles != second.TotalFiles ||
		first.TotalDirs != second.TotalDirs {
		t.Errorf("rebuild changed counts: %+v vs %+v", first, second)
	}
}

func TestConfigDriftForcesRebuild(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	populate(t, root)
	x, st := newTestIndexer(t, root, Config{Workers: 2, PathMode: "relative"})
	ctx := context.Background()

	if err := x.Build(ctx, false); err != nil {
		t.Fatal(err)
	}

	// Same store, different recorded path mode: the non-forced run must
	// rebuild anyway rather than serve a mismatched index.
	if err := st.SetMetadata(ctx, store.MetaPathMode, "absolute"); err != nil {
		t.Fatal(err)
	}
	before, _ := st.LastBuilt(ctx)

	if err := x.Build(ctx, false); err != nil {
		t.Fatal(err)
	}

	if mode, _ := st.PathMode(ctx); mode != "relative" {
		t.Errorf("PathMode = %q after drift rebuild, want relative", mode)
	}
	after, _ := st.LastBuilt(ctx)
	if after.Before(before) {
		t.Error("drift did not trigger a rebuild")
	}
}

func TestBuildMissingRoot(t *testing.T) {
	t.Parallel()

	x, _ := newTestIndexer(t, filepath.Join(t.TempDir(), "nope"), Config{})
	if err := x.Build(context.Background(), false); err == nil {
		t.Fatal("build of a missing root must fail")
	}
}

func TestBuildCancellationLeavesIndexIncomplete(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	populate(t, root)
	x, st := newTestIndexer(t, root, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := x.Build(ctx, true); err == nil {
		t.Fatal("cancelled build must return an error")
	}

	lastBuilt, err := st.LastBuilt(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !lastBuilt.IsZero() {
		t.Error("cancelled build left a completion marker; a restart would serve a partial index")
	}
}

// throttledApplier slows each commit down so a build stays in flight long
// enough for another producer to interleave ops on the same pipeline.
type throttledApplier struct {
	st    *store.Store
	delay time.Duration
}

func (a throttledApplier) ApplyBatch(ctx context.Context, ops []pipeline.Op) error {
	time.Sleep(a.delay)
	return a.st.ApplyBatch(ctx, ops)
}

func TestBuildWithConcurrentLiveUpdate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	populate(t, root)

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	pipe := pipeline.New(throttledApplier{st: st, delay: 50 * time.Millisecond}, pipeline.Config{BatchSize: 1})
	t.Cleanup(func() {
		pipe.Close()
		st.Close()
	})
	x := New(root, st, pipe, Config{Workers: 2, PathMode: "relative"})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- x.Build(ctx, true) }()
	for !x.Building() {
		time.Sleep(time.Millisecond)
	}

	// A live update for a path the crawl also emits, submitted mid-build
	// through the same pipeline. Both writes serialize through the single
	// writer; the path must resolve to exactly one row either way.
	live := entry.Entry{
		Name:       "b.jpg",
		Path:       "sub/b.jpg",
		ParentPath: "sub",
		Type:       filetypes.CategoryImage,
		Size:       1,
		ModifiedAt: time.Now(),
	}
	if err := pipe.Upsert(ctx, live); err != nil {
		t.Fatalf("live upsert during build: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := pipe.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := st.Get(ctx, "sub/b.jpg"); err != nil {
		t.Fatalf("contested path missing after build: %v", err)
	}
	res, err := st.Search(ctx, store.SearchOptions{Term: "b.jpg", Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalItems != 1 {
		t.Errorf("contested path resolved to %d rows, want 1", res.TotalItems)
	}
}

func TestBuildRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	x, _ := newTestIndexer(t, root, Config{})

	if err := x.tryStart(); err != nil {
		t.Fatal(err)
	}
	defer x.finish()

	if err := x.Build(context.Background(), true); !errors.Is(err, ErrBuildInProgress) {
		t.Errorf("concurrent build error = %v, want ErrBuildInProgress", err)
	}
}

func TestProgressPercent(t *testing.T) {
	t.Parallel()

	p := Progress{FilesIndexed: 40, DirsIndexed: 10, TotalEstimate: 100}
	if got := p.PercentComplete(); got != 50 {
		t.Errorf("PercentComplete = %v, want 50", got)
	}

	// No estimate means no percentage, and overshoot clamps.
	if got := (Progress{FilesIndexed: 10}).PercentComplete(); got != 0 {
		t.Errorf("PercentComplete without estimate = %v, want 0", got)
	}
	over := Progress{FilesIndexed: 200, TotalEstimate: 100}
	if got := over.PercentComplete(); got != 100 {
		t.Errorf("PercentComplete clamped = %v, want 100", got)
	}
}
