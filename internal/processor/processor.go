package processor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/backmassage/courseforge/internal/queue"
)

// Job is everything a processor receives for one invocation.
type Job struct {
	Processor  string        // Processor id, e.g. "passthrough", "pdf", "archive".
	InputPath  string        // Absolute source path.
	OutputPath string        // Destination file (or directory for archives).
	WorkDir    string        // Working directory for the call.
	Timeout    time.Duration // Deadline already applied to ctx; informational.
}

// Outcome is the processor's report. Exactly one of Success, Skipped, or a
// non-nil Error is expected.
type Outcome struct {
	Success    bool
	Skipped    bool
	SkipReason string
	Payload    map[string]any
	Warnings   []string
	Error      *queue.ErrorRecord
}

// Processor transforms one input into one output. A returned Go error means
// the processor itself misbehaved; content failures belong in Outcome.Error.
type Processor interface {
	Process(ctx context.Context, job Job) (Outcome, error)
}

// Func adapts a plain function to Processor.
type Func func(ctx context.Context, job Job) (Outcome, error)

// Process calls f.
func (f Func) Process(ctx context.Context, job Job) (Outcome, error) { return f(ctx, job) }

// Succeeded returns a success outcome carrying payload.
func Succeeded(payload map[string]any, warnings ...string) Outcome {
	return Outcome{Success: true, Payload: payload, Warnings: warnings}
}

// Failed returns a failure outcome.
func Failed(rec *queue.ErrorRecord) Outcome {
	return Outcome{Error: rec}
}

// Skipped returns a skip outcome.
func Skipped(reason string) Outcome {
	return Outcome{Skipped: true, SkipReason: reason}
}

// invocationFailed is the common failure record for content and I/O errors.
func invocationFailed(job Job, msg string, recoverable bool) *queue.ErrorRecord {
	return queue.NewError(queue.CodeProcessorInvocationFailed, msg, recoverable).
		With("processor", job.Processor).
		With("input", job.InputPath)
}

// Result is the per-attempt report the pool produces for each processor
// call (or rejection).
type Result struct {
	ItemID     string             `json:"item_id"`
	Course     string             `json:"course"`
	InputPath  string             `json:"input_path"`
	Success    bool               `json:"success"`
	Skipped    bool               `json:"skipped"`
	SkipReason string             `json:"skip_reason,omitempty"`
	OutputPath string             `json:"output_path"`
	OutputSize int64              `json:"output_size"`
	Duration   time.Duration      `json:"duration"`
	Warnings   []string           `json:"warnings,omitempty"`
	Error      *queue.ErrorRecord `json:"error,omitempty"`
	Attempt    int                `json:"attempt"`
	Retried    bool               `json:"retried"` // The item went back to pending after this attempt.
}

// OutputSize returns the size of path: the file size, or the total size of
// regular files below it for a directory. Missing paths count as zero.
func OutputSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !fi.IsDir() {
		return fi.Size()
	}
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// ensureParent creates the directory that will hold path.
func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// writeOutput writes data to path unless ctx is already done.
func writeOutput(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
