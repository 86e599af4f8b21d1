package pool

import "github.com/backmassage/courseforge/internal/queue"

// Policy decides how failures are treated.
type Policy struct {
	// MaxAttempts is the attempt budget per item. Values <= 0 mean
	// queue.DefaultMaxAttempts.
	MaxAttempts int
	// Recoverable reports whether a failure may be retried. Nil means the
	// record's own Recoverable flag.
	Recoverable func(*queue.ErrorRecord) bool
}

// DefaultPolicy retries recoverable failures up to three attempts.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: queue.DefaultMaxAttempts}
}

func (p Policy) recoverable(rec *queue.ErrorRecord) bool {
	if rec == nil {
		return false
	}
	if p.Recoverable != nil {
		return p.Recoverable(rec)
	}
	return rec.Recoverable
}
