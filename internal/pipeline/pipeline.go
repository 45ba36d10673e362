package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"fsindex/internal/entry"
	"fsindex/internal/logging"
	"fsindex/internal/metrics"
)

// OpKind discriminates the mutations the pipeline can carry.
type OpKind int

const (
	// OpUpsert inserts or replaces a single entry.
	OpUpsert OpKind = iota
	// OpDelete removes a single entry by canonical path.
	OpDelete
	// OpDeleteTree removes an entry and all of its descendants.
	OpDeleteTree
	// opFlush is an internal barrier: the writer commits everything queued
	// before it and then signals the waiter.
	opFlush
)

// Op is one queued index mutation. Ops are applied in submission order.
type Op struct {
	Kind  OpKind
	Entry *entry.Entry // OpUpsert
	Path  string       // OpDelete, OpDeleteTree

	done chan struct{} // opFlush
}

// Applier commits a batch of ops as a single transaction.
// The store implements this; tests substitute fakes.
type Applier interface {
	ApplyBatch(ctx context.Context, ops []Op) error
}

// Config tunes the pipeline.
type Config struct {
	// QueueCapacity bounds the op queue; full queues block producers.
	QueueCapacity int
	// BatchSize is the maximum number of ops committed per transaction.
	BatchSize int
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Applied int64
	Failed  int64
	Batches int64
	Retries int64
}

// ErrClosed is returned when submitting to a closed pipeline.
var ErrClosed = errors.New("pipeline closed")

// Pipeline decouples crawl and monitor producers from the single writer that
// owns write access to the index store. Producers block when the bounded
// queue is full; the writer drains it into fixed-size transactional batches.
type Pipeline struct {
	applier Applier
	ops     chan Op
	cfg     Config

	// mu guards isClosed against the channel close in Close so a late
	// Submit can never send on a closed channel.
	mu       sync.RWMutex
	isClosed bool
	wg       sync.WaitGroup

	applied atomic.Int64
	failed  atomic.Int64
	batches atomic.Int64
	retries atomic.Int64
}

// New creates a pipeline and starts its writer goroutine.
func New(applier Applier, cfg Config) *Pipeline {
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 10000
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1000
	}

	p := &Pipeline{
		applier: applier,
		ops:     make(chan Op, cfg.QueueCapacity),
		cfg:     cfg,
	}

	p.wg.Add(1)
	go p.writer()

	return p
}

// Submit enqueues one op, blocking while the queue is full (backpressure).
// It fails only when ctx is cancelled or the pipeline is closed.
func (p *Pipeline) Submit(ctx context.Context, op Op) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.isClosed {
		return ErrClosed
	}

	// The read lock is held across the blocking send. Close waits for it,
	// and the writer keeps draining, so the send always completes.
	select {
	case p.ops <- op:
		metrics.QueueDepth.Set(float64(len(p.ops)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upsert enqueues an insert-or-replace for e.
func (p *Pipeline) Upsert(ctx context.Context, e entry.Entry) error {
	return p.Submit(ctx, Op{Kind: OpUpsert, Entry: &e})
}

// Delete enqueues a single-entry delete.
func (p *Pipeline) Delete(ctx context.Context, path string) error {
	return p.Submit(ctx, Op{Kind: OpDelete, Path: path})
}

// DeleteTree enqueues a subtree delete.
func (p *Pipeline) DeleteTree(ctx context.Context, path string) error {
	return p.Submit(ctx, Op{Kind: OpDeleteTree, Path: path})
}

// Flush blocks until every op submitted before the call has been committed.
func (p *Pipeline) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := p.Submit(ctx, Op{Kind: opFlush, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting ops, flushes the partial batch, and waits for the
// writer to exit.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if !p.isClosed {
		p.isClosed = true
		close(p.ops)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Applied: p.applied.Load(),
		Failed:  p.failed.Load(),
		Batches: p.batches.Load(),
		Retries: p.retries.Load(),
	}
}

// writer is the single consumer. It blocks for the first op, then greedily
// drains up to BatchSize ops before committing, so batches grow under load
// and shrink when the queue is quiet.
func (p *Pipeline) writer() {
	defer p.wg.Done()

	batch := make([]Op, 0, p.cfg.BatchSize)
	var flushes []chan struct{}

	commit := func() {
		if len(batch) > 0 {
			p.commitBatch(batch)
			batch = batch[:0]
		}
		for _, done := range flushes {
			close(done)
		}
		flushes = flushes[:0]
	}

	for op := range p.ops {
		if op.Kind == opFlush {
			flushes = append(flushes, op.done)
			// Drain what is already queued so the barrier covers it.
			if p.drainInto(&batch, &flushes) {
				commit()
				return
			}
			commit()
			continue
		}

		batch = append(batch, op)
		if p.drainInto(&batch, &flushes) {
			commit()
			return
		}
		commit()
	}

	commit()
}

// drainInto performs non-blocking receives until the batch is full or the
// queue is momentarily empty. Returns true once the channel is closed.
func (p *Pipeline) drainInto(batch *[]Op, flushes *[]chan struct{}) (closed bool) {
	for len(*batch) < p.cfg.BatchSize {
		select {
		case op, ok := <-p.ops:
			if !ok {
				return true
			}
			if op.Kind == opFlush {
				*flushes = append(*flushes, op.done)
				continue
			}
			*batch = append(*batch, op)
		default:
			metrics.QueueDepth.Set(float64(len(p.ops)))
			return false
		}
	}
	return false
}

// commitBatch applies one batch, retrying once on failure. A batch that fails
// twice is logged and counted, never silently dropped from the tallies.
func (p *Pipeline) commitBatch(batch []Op) {
	err := p.applier.ApplyBatch(context.Background(), batch)
	if err != nil {
		p.retries.Add(1)
		metrics.BatchRetries.Inc()
		logging.Warn("Batch commit failed (%d ops), retrying once: %v", len(batch), err)
		err = p.applier.ApplyBatch(context.Background(), batch)
	}
	if err != nil {
		p.failed.Add(int64(len(batch)))
		metrics.OpsFailed.Add(float64(len(batch)))
		logging.Error("Batch commit failed after retry, %d ops lost: %v", len(batch), err)
		return
	}

	p.batches.Add(1)
	p.applied.Add(int64(len(batch)))
	metrics.BatchesCommitted.Inc()
	for _, op := range batch {
		switch op.Kind {
		case OpUpsert:
			metrics.OpsWritten.WithLabelValues("upsert").Inc()
		case OpDelete:
			metrics.OpsWritten.WithLabelValues("delete").Inc()
		case OpDeleteTree:
			metrics.OpsWritten.WithLabelValues("delete_tree").Inc()
		}
	}
}
