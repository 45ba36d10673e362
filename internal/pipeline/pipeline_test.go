package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fsindex/internal/entry"
)

// fakeApplier records applied batches and can fail a configurable number of
// times per batch.
type fakeApplier struct {
	mu       sync.Mutex
	batches  [][]Op
	failures int
}

func (f *fakeApplier) ApplyBatch(_ context.Context, ops []Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("simulated commit failure")
	}
	batch := make([]Op, len(ops))
	copy(batch, ops)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeApplier) appliedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var paths []string
	for _, batch := range f.batches {
		for _, op := range batch {
			if op.Kind == OpUpsert {
				paths = append(paths, op.Entry.Path)
			} else {
				paths = append(paths, op.Path)
			}
		}
	}
	return paths
}

func (f *fakeApplier) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestSubmitAndFlush(t *testing.T) {
	t.Parallel()

	fake := &fakeApplier{}
	p := New(fake, Config{})
	defer p.Close()

	ctx := context.Background()
	for _, path := range []string{"a", "b", "c"} {
		if err := p.Upsert(ctx, entry.Entry{Path: path}); err != nil {
			t.Fatalf("Upsert(%s): %v", path, err)
		}
	}

	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := fake.appliedPaths()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("applied %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("applied %v, want %v (submission order)", got, want)
		}
	}
}

func TestBatchSizeLimit(t *testing.T) {
	t.Parallel()

	fake := &fakeApplier{}
	p := New(fake, Config{BatchSize: 10, QueueCapacity: 100})

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if err := p.Upsert(ctx, entry.Entry{Path: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	p.Close()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	total := 0
	for _, batch := range fake.batches {
		if len(batch) > 10 {
			t.Errorf("batch of %d ops exceeds configured size 10", len(batch))
		}
		total += len(batch)
	}
	if total != 25 {
		t.Errorf("applied %d ops total, want 25", total)
	}
}

func TestRetryOnce(t *testing.T) {
	t.Parallel()

	fake := &fakeApplier{failures: 1}
	p := New(fake, Config{})
	defer p.Close()

	ctx := context.Background()
	if err := p.Upsert(ctx, entry.Entry{Path: "retried"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if got := fake.appliedPaths(); len(got) != 1 || got[0] != "retried" {
		t.Fatalf("applied %v after one failure, want the retried op", got)
	}

	stats := p.Stats()
	if stats.Retries != 1 {
		t.Errorf("Retries = %d, want 1", stats.Retries)
	}
	if stats.Failed != 0 {
		t.Errorf("Failed = %d, want 0 after successful retry", stats.Failed)
	}
}

func TestBatchLostAfterSecondFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeApplier{failures: 2}
	p := New(fake, Config{})
	defer p.Close()

	ctx := context.Background()
	if err := p.Upsert(ctx, entry.Entry{Path: "lost"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if fake.batchCount() != 0 {
		t.Error("batch should not have been applied")
	}
	stats := p.Stats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1 counted lost op", stats.Failed)
	}
}

func TestCloseFlushesPartialBatch(t *testing.T) {
	t.Parallel()

	fake := &fakeApplier{}
	p := New(fake, Config{BatchSize: 1000})

	ctx := context.Background()
	if err := p.Upsert(ctx, entry.Entry{Path: "pending"}); err != nil {
		t.Fatal(err)
	}
	p.Close()

	if got := fake.appliedPaths(); len(got) != 1 || got[0] != "pending" {
		t.Fatalf("Close left pending ops unapplied: %v", got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	t.Parallel()

	p := New(&fakeApplier{}, Config{})
	p.Close()

	err := p.Upsert(context.Background(), entry.Entry{Path: "late"})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Upsert after Close = %v, want ErrClosed", err)
	}

	// A second Close must be harmless.
	p.Close()
}

func TestFlushBarrierCoversPriorOps(t *testing.T) {
	t.Parallel()

	fake := &fakeApplier{}
	p := New(fake, Config{QueueCapacity: 1000})
	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := p.Delete(ctx, "victim"); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if got := len(fake.appliedPaths()); got != 100 {
		t.Errorf("flush returned with %d of 100 ops applied", got)
	}
}

func TestConcurrentProducers(t *testing.T) {
	t.Parallel()

	fake := &fakeApplier{}
	p := New(fake, Config{QueueCapacity: 10, BatchSize: 5})

	ctx := context.Background()
	var wg sync.WaitGroup
	const producers, perProducer = 8, 50

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if err := p.Upsert(ctx, entry.Entry{Path: "p"}); err != nil {
					t.Errorf("Upsert: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	p.Close()

	if got := len(fake.appliedPaths()); got != producers*perProducer {
		t.Errorf("applied %d ops, want %d", got, producers*perProducer)
	}
}

func TestSubmitCancellation(t *testing.T) {
	t.Parallel()

	// A full queue with a stalled applier exerts backpressure; a cancelled
	// context must unblock the producer.
	block := make(chan struct{})
	p := New(applierFunc(func(ctx context.Context, ops []Op) error {
		<-block
		return nil
	}), Config{QueueCapacity: 1, BatchSize: 1})
	defer func() {
		close(block)
		p.Close()
	}()

	ctx := context.Background()
	// Fill the writer and the queue. Done asynchronously since either send
	// may itself block behind the stalled applier.
	go func() { _ = p.Delete(ctx, "a") }()
	go func() { _ = p.Delete(ctx, "b") }()
	time.Sleep(50 * time.Millisecond)

	cancelCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Delete(cancelCtx, "c") }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("blocked Submit returned %v, want context.Canceled or nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not unblock on cancellation")
	}
}

type applierFunc func(ctx context.Context, ops []Op) error

func (f applierFunc) ApplyBatch(ctx context.Context, ops []Op) error { return f(ctx, ops) }
