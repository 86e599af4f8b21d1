package queue

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/courseforge/internal/route"
	"github.com/backmassage/courseforge/internal/scan"
)

// Status is the lifecycle state of an item.
//
//	pending → processing → completed | failed | skipped
//	processing → pending (recoverable failure with attempts left)
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Item is one routed file waiting for, undergoing, or finished with
// processing. Only the Queue mutates it. Once Submit has returned, accessors
// for mutable state take the owning queue's lock and are safe from any
// goroutine. Before that the item belongs to the goroutine that created it.
type Item struct {
	// Set at creation; never change.
	id         string
	file       scan.File
	decision   route.Decision
	outputPath string
	priority   int

	// Set once by Submit. The fields below are guarded by q.mu once
	// submitted.
	q           atomic.Pointer[Queue]
	seq         uint64
	maxAttempts int
	status      Status
	attempts    int
	err         *ErrorRecord
	skipReason  string
	submittedAt time.Time
	startedAt   time.Time
	completedAt time.Time
	history     []Status
}

// NewItem creates a pending item with a fresh unique id. decision and
// outputPath may be empty; the pool rejects such items with
// CodeMissingRoutingDecision / CodeMissingOutputPath.
func NewItem(f scan.File, decision route.Decision, outputPath string, priority int) *Item {
	return &Item{
		id:         uuid.NewString(),
		file:       f,
		decision:   decision,
		outputPath: outputPath,
		priority:   priority,
		status:     StatusPending,
		history:    []Status{StatusPending},
	}
}

func (it *Item) ID() string               { return it.id }
func (it *Item) File() scan.File          { return it.file }
func (it *Item) Decision() route.Decision { return it.decision }
func (it *Item) OutputPath() string       { return it.outputPath }
func (it *Item) Priority() int            { return it.priority }

// lock takes the owning queue's lock, if any, and returns its unlock.
func (it *Item) lock() func() {
	q := it.q.Load()
	if q == nil {
		return func() {}
	}
	q.mu.Lock()
	return q.mu.Unlock
}

// Status returns the current lifecycle state.
func (it *Item) Status() Status {
	defer it.lock()()
	return it.status
}

// Attempts returns the number of recoverable failures recorded so far.
func (it *Item) Attempts() int {
	defer it.lock()()
	return it.attempts
}

// MaxAttempts returns the attempt budget assigned at submission.
func (it *Item) MaxAttempts() int {
	defer it.lock()()
	return it.maxAttempts
}

// Err returns the last recorded error, or nil.
func (it *Item) Err() *ErrorRecord {
	defer it.lock()()
	return it.err
}

// SkipReason is set when the item was skipped.
func (it *Item) SkipReason() string {
	defer it.lock()()
	return it.skipReason
}

// StartedAt is the time of the most recent acquire.
func (it *Item) StartedAt() time.Time {
	defer it.lock()()
	return it.startedAt
}

// CompletedAt is the time the item reached a terminal state.
func (it *Item) CompletedAt() time.Time {
	defer it.lock()()
	return it.completedAt
}

// History returns every state the item has been in, oldest first.
func (it *Item) History() []Status {
	defer it.lock()()
	return append([]Status(nil), it.history...)
}

// setStatus records a transition. Caller holds q.mu.
func (it *Item) setStatus(s Status) {
	it.status = s
	it.history = append(it.history, s)
}
