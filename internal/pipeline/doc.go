// Package pipeline runs the batch: it discovers courses under the input
// root and, for each course in name order, scans, routes and resolves
// output paths, submits the routed files to a fresh worker pool, waits for
// the pool to drain, and aggregates the results into RunStats.
//
// Plan performs the same discovery, scan and routing without running any
// processor; WritePlan renders it as a per-course table.
package pipeline
