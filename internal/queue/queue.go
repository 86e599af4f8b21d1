package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultMaxAttempts is the attempt budget given to items when the queue is
// created with maxAttempts <= 0.
const DefaultMaxAttempts = 3

// Stats is a point-in-time count of items by state. Pending + Processing +
// Completed + Failed + Skipped always equals Total.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Sum returns the sum of all per-state counts.
func (s Stats) Sum() int {
	return s.Pending + s.Processing + s.Completed + s.Failed + s.Skipped
}

// Queue holds pending items ordered by (priority, submission order) and
// hands them out while fewer than Limit are processing. Callers that find
// nothing available suspend in FIFO order until an item is handed to them
// or the queue is closed and drained.
type Queue struct {
	mu          sync.Mutex
	limit       int
	maxAttempts int

	seq        uint64
	pending    []*Item // sorted by (priority, seq)
	processing int
	completed  int
	failed     int
	skipped    int
	items      []*Item // every submitted item, submission order

	waiters []chan *Item // FIFO; each buffered with capacity 1
	closed  bool
}

// New creates a queue allowing at most limit items in processing at once.
// Items get maxAttempts as their attempt budget (DefaultMaxAttempts when
// <= 0).
func New(limit, maxAttempts int) (*Queue, error) {
	if limit < 1 {
		return nil, fmt.Errorf("queue limit must be >= 1, got %d", limit)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{limit: limit, maxAttempts: maxAttempts}, nil
}

// Limit returns the concurrency limit.
func (q *Queue) Limit() int { return q.limit }

// Submit inserts a pending item. Returns ErrClosed after Close and
// ErrAlreadySubmitted if the item has been submitted before.
func (q *Queue) Submit(it *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.submitLocked(it); err != nil {
		return err
	}
	q.dispatchLocked()
	return nil
}

// SubmitMany submits items in order. It stops at the first error.
func (q *Queue) SubmitMany(items []*Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.dispatchLocked()
	for _, it := range items {
		if err := q.submitLocked(it); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) submitLocked(it *Item) error {
	if q.closed {
		return ErrClosed
	}
	if !it.q.CompareAndSwap(nil, q) {
		return fmt.Errorf("%w: %s", ErrAlreadySubmitted, it.id)
	}
	q.seq++
	it.seq = q.seq
	it.maxAttempts = q.maxAttempts
	it.submittedAt = time.Now()
	q.items = append(q.items, it)
	q.insertLocked(it)
	return nil
}

// Acquire returns the next item and marks it processing. It blocks while
// nothing is available. It returns (nil, false) when:
//   - the queue is closed with no pending or processing work;
//   - ctx is done before an item was handed over;
//   - Close wakes this caller while it is suspended, even if pending work
//     remains behind the concurrency limit. Call Acquire again to keep
//     draining.
func (q *Queue) Acquire(ctx context.Context) (*Item, bool) {
	q.mu.Lock()
	if len(q.waiters) == 0 && len(q.pending) > 0 && q.processing < q.limit {
		it := q.startLocked()
		q.mu.Unlock()
		return it, true
	}
	if q.drainedLocked() {
		q.mu.Unlock()
		return nil, false
	}
	ch := make(chan *Item, 1)
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case it := <-ch:
		return it, it != nil
	case <-ctx.Done():
		q.mu.Lock()
		removed := q.removeWaiterLocked(ch)
		q.mu.Unlock()
		if removed {
			return nil, false
		}
		// Something was sent before we could withdraw; the item is ours.
		it := <-ch
		return it, it != nil
	}
}

// Complete moves a processing item to completed.
func (q *Queue) Complete(it *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finishLocked(it, StatusCompleted, nil, "")
}

// Fail moves a processing item to failed with the given error.
func (q *Queue) Fail(it *Item, rec *ErrorRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finishLocked(it, StatusFailed, rec, "")
}

// Skip moves a processing item to skipped.
func (q *Queue) Skip(it *Item, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finishLocked(it, StatusSkipped, nil, reason)
}

// Retry records a recoverable failure on a processing item. If attempts
// remain the item returns to pending with its original priority and
// submission order; otherwise it fails with CodeMaxAttemptsExceeded. The
// resulting status is returned.
func (q *Queue) Retry(it *Item, cause *ErrorRecord) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it.q.Load() != q || it.status != StatusProcessing {
		return "", q.transitionErr(it, StatusPending)
	}

	it.attempts++
	if cause != nil {
		it.err = cause
	}
	if it.attempts >= it.maxAttempts {
		msg := fmt.Sprintf("max attempts (%d) exceeded", it.maxAttempts)
		rec := NewError(CodeMaxAttemptsExceeded, msg, false)
		if cause != nil {
			rec.Message = msg + ": " + cause.Message
			rec.With("last_error_code", string(cause.Code))
		}
		return StatusFailed, q.finishLocked(it, StatusFailed, rec, "")
	}

	q.processing--
	it.setStatus(StatusPending)
	q.insertLocked(it)
	q.dispatchLocked()
	return StatusPending, nil
}

// Close stops further submissions and wakes every suspended Acquire that
// cannot be served. Pending work is still handed out. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.releaseWaitersLocked()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns the current per-state counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Total:      len(q.items),
		Pending:    len(q.pending),
		Processing: q.processing,
		Completed:  q.completed,
		Failed:     q.failed,
		Skipped:    q.skipped,
	}
}

// Items returns every submitted item in submission order.
func (q *Queue) Items() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Item(nil), q.items...)
}

// --- internals; all require q.mu ---

func (q *Queue) drainedLocked() bool {
	return q.closed && len(q.pending) == 0 && q.processing == 0
}

func (q *Queue) insertLocked(it *Item) {
	i := sort.Search(len(q.pending), func(i int) bool {
		p := q.pending[i]
		return p.priority > it.priority || (p.priority == it.priority && p.seq > it.seq)
	})
	q.pending = append(q.pending, nil)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = it
}

// startLocked pops the head of pending and marks it processing.
func (q *Queue) startLocked() *Item {
	it := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.processing++
	if q.processing > q.limit {
		panic(fmt.Sprintf("queue: %d processing exceeds limit %d", q.processing, q.limit))
	}
	it.startedAt = time.Now()
	it.setStatus(StatusProcessing)
	return it
}

// dispatchLocked hands pending items to suspended callers while capacity
// allows, then releases everyone if the queue has drained after Close.
func (q *Queue) dispatchLocked() {
	for len(q.waiters) > 0 && len(q.pending) > 0 && q.processing < q.limit {
		ch := q.waiters[0]
		q.waiters[0] = nil
		q.waiters = q.waiters[1:]
		ch <- q.startLocked()
	}
	if q.drainedLocked() {
		q.releaseWaitersLocked()
	}
}

// releaseWaitersLocked wakes every suspended caller with no item. Callers
// woken this way re-observe the queue on their next Acquire.
func (q *Queue) releaseWaitersLocked() {
	for _, ch := range q.waiters {
		ch <- nil
	}
	q.waiters = nil
}

func (q *Queue) removeWaiterLocked(ch chan *Item) bool {
	for i, w := range q.waiters {
		if w == ch {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) finishLocked(it *Item, to Status, rec *ErrorRecord, reason string) error {
	if it.q.Load() != q || it.status != StatusProcessing {
		return q.transitionErr(it, to)
	}
	q.processing--
	switch to {
	case StatusCompleted:
		q.completed++
	case StatusFailed:
		q.failed++
		it.err = rec
	case StatusSkipped:
		q.skipped++
		it.skipReason = reason
	}
	it.completedAt = time.Now()
	it.setStatus(to)
	q.dispatchLocked()
	return nil
}

func (q *Queue) transitionErr(it *Item, to Status) error {
	if it.q.Load() != q {
		return fmt.Errorf("%w: item %s not owned by this queue", ErrInvalidTransition, it.id)
	}
	return fmt.Errorf("%w: %s → %s (item %s)", ErrInvalidTransition, it.status, to, it.id)
}
