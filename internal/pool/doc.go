// Package pool drains a priority queue with a fixed set of workers, calling
// a processor for each item under a per-call timeout and applying the retry
// policy to failures. One failing item never stops the others.
package pool
