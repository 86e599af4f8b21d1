package processor

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Copy copies the input to the output path unchanged.
type Copy struct{}

// Process implements Processor.
func (Copy) Process(ctx context.Context, job Job) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	n, err := copyFile(ctx, job.InputPath, job.OutputPath)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Failed(invocationFailed(job, err.Error(), false)), nil
	}
	return Succeeded(map[string]any{"bytes": n}), nil
}

// copyFile writes src to dst through a temporary sibling so a failed copy
// never leaves a truncated destination. Once ctx is done the copy stops at
// the next chunk and dst is left untouched.
func copyFile(ctx context.Context, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := ensureParent(dst); err != nil {
		return 0, err
	}
	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, ctxReader{ctx, in})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// ctxReader fails every Read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
