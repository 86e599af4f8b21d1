// Package processor defines the contract between the worker pool and the
// collaborators that transform file content, plus the collaborators
// themselves.
//
// Types:
//   - Processor: Process(ctx, Job) → (Outcome, error)
//   - Job: processor id, input path, output path, working directory
//   - Outcome / Result: per-call report and the pool's per-attempt record
//
// Collaborators:
//   - Copy: passthrough copy
//   - HTML: HTML → Markdown (goquery)
//   - SQLite: schema and sample rows → Markdown (go-sqlite3)
//   - Script: external skill script speaking the JSON status protocol
//   - Dispatcher: picks one of the above by processor id; handles
//     skip-existing and dry-run
package processor
