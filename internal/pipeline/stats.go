package pipeline

import (
	"time"

	"github.com/backmassage/courseforge/internal/processor"
	"github.com/backmassage/courseforge/internal/queue"
)

// CourseStats is the outcome of one course.
type CourseStats struct {
	Name        string
	Scanned     int // Files returned by the scanner.
	Unsupported int // Logged and never submitted.
	Rejected    int // Refused by the reject collision policy.
	Total       int // Items submitted to the queue.
	Completed   int
	Failed      int
	Skipped     int
	Pending     int // Left pending by an interrupt.
	Retries     int
	InputBytes  int64 // Inputs of completed items.
	OutputBytes int64 // Outputs of completed items.
	Duration    time.Duration
	Err         error // Set when the course could not be scanned.
}

// RunStats aggregates every course of a run.
type RunStats struct {
	RunID       string
	Courses     []CourseStats
	Total       int
	Completed   int
	Failed      int
	Skipped     int
	Pending     int
	Unsupported int
	Rejected    int
	Retries     int
	InputBytes  int64
	OutputBytes int64
	Duration    time.Duration
	Interrupted bool
}

func (s *RunStats) add(c CourseStats) {
	s.Courses = append(s.Courses, c)
	s.Total += c.Total
	s.Completed += c.Completed
	s.Failed += c.Failed
	s.Skipped += c.Skipped
	s.Pending += c.Pending
	s.Unsupported += c.Unsupported
	s.Rejected += c.Rejected
	s.Retries += c.Retries
	s.InputBytes += c.InputBytes
	s.OutputBytes += c.OutputBytes
}

// FailedCourses counts courses that could not be scanned.
func (s *RunStats) FailedCourses() int {
	n := 0
	for _, c := range s.Courses {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// ExitCode is 1 when any item failed, any file was rejected by the
// collision policy, or any course could not be scanned; 0 otherwise.
func (s *RunStats) ExitCode() int {
	if s.Failed > 0 || s.Rejected > 0 || s.FailedCourses() > 0 {
		return 1
	}
	return 0
}

// collect fills the queue-derived counters from the final queue snapshot
// and the pool's per-attempt results.
func (c *CourseStats) collect(st queue.Stats, items []*queue.Item, results []processor.Result) {
	c.Total = st.Total
	c.Completed = st.Completed
	c.Failed = st.Failed
	c.Skipped = st.Skipped
	c.Pending = st.Pending + st.Processing

	for _, it := range items {
		if it.Status() == queue.StatusCompleted {
			c.InputBytes += it.File().Size
		}
	}
	for _, r := range results {
		if r.Retried {
			c.Retries++
		}
		if r.Success {
			c.OutputBytes += r.OutputSize
		}
	}
}
