package crawler

import "sync"

// dirQueue is the crawl work queue. Each pushed directory is claimed by
// exactly one worker (pop removes it under the lock), which is what makes
// the no-duplicate-emission guarantee hold without any per-path bookkeeping.
// The queue tracks outstanding work so workers know when the crawl is over:
// a directory counts as outstanding from push until the claiming worker
// calls done.
type dirQueue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []string
	order       Order
	outstanding int
	closed      bool
}

func newDirQueue(order Order) *dirQueue {
	q := &dirQueue{order: order}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push schedules one directory for scanning.
func (q *dirQueue) push(rel string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, rel)
	q.outstanding++
	q.cond.Signal()
}

// pop claims one directory, blocking until work is available or the crawl is
// over. Returns false when no more work will ever arrive.
func (q *dirQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}

	var rel string
	if q.order == OrderDepth {
		// LIFO: deepest discovered work first.
		rel = q.items[len(q.items)-1]
		q.items = q.items[:len(q.items)-1]
	} else {
		// FIFO: level by level.
		rel = q.items[0]
		q.items = q.items[1:]
	}
	return rel, true
}

// done marks one claimed directory as fully scanned. When nothing is
// outstanding the queue closes and blocked workers drain out.
func (q *dirQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding--
	if q.outstanding <= 0 && !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}

// shutdown closes the queue early (cancellation or a failing sink).
func (q *dirQueue) shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.items = nil
		q.cond.Broadcast()
	}
}
