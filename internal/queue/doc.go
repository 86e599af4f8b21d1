// Package queue implements the priority work queue: pending items ordered
// by (priority, submission order), handed out while fewer than a fixed
// limit are processing, with retry bookkeeping and per-state counts.
//
// All state lives behind one mutex. Callers suspended in Acquire are served
// first-in first-out and receive items directly.
package queue
