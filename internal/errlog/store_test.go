package errlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/courseforge/internal/queue"
	"github.com/backmassage/courseforge/internal/route"
	"github.com/backmassage/courseforge/internal/scan"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "sub", "errors.db"))
	require.NotEmpty(t, s.RunID())

	require.NoError(t, s.Record(ctx, Entry{
		Course:    "algo",
		InputPath: "/in/algo/a.pdf",
		Code:      queue.CodeProcessorInvocationFailed,
		Message:   "corrupt",
		Context:   map[string]string{"stderr": "trace"},
	}))
	require.NoError(t, s.Record(ctx, Entry{
		Severity:  SeverityWarning,
		Course:    "algo",
		InputPath: "/in/algo/b.xyz",
		Code:      queue.CodeUnsupportedExtension,
		Message:   "no handler for .xyz",
	}))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, queue.CodeUnsupportedExtension, all[0].Code, "newest first")
	assert.Equal(t, SeverityError, all[1].Severity, "severity defaults to error")
	assert.Equal(t, "trace", all[1].Context["stderr"])
	assert.Equal(t, s.RunID(), all[1].RunID)
	assert.False(t, all[1].RecordedAt.IsZero())

	errs, err := s.List(ctx, Filter{Severity: SeverityError})
	require.NoError(t, err)
	assert.Len(t, errs, 1)

	byCode, err := s.List(ctx, Filter{Code: queue.CodeUnsupportedExtension, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, byCode, 1)

	none, err := s.List(ctx, Filter{Course: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordFailures(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "errors.db"))

	q, err := queue.New(2, 3)
	require.NoError(t, err)
	mk := func(name string) *queue.Item {
		return queue.NewItem(scan.File{Name: name, RelPath: name, AbsPath: "/in/c/" + name, Course: "c"},
			route.Passthrough{}, "/out/"+name, 10)
	}
	ok, bad := mk("ok.txt"), mk("bad.txt")
	require.NoError(t, q.SubmitMany([]*queue.Item{ok, bad}))
	a, _ := q.Acquire(ctx)
	b, _ := q.Acquire(ctx)
	require.NoError(t, q.Complete(a))
	require.NoError(t, q.Fail(b, queue.NewError(queue.CodeHandlerException, "panic", false).With("k", "v")))

	n, err := s.RecordFailures(ctx, q.Items())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := s.List(ctx, Filter{RunID: s.RunID()})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/in/c/bad.txt", entries[0].InputPath)
	assert.Equal(t, "/out/bad.txt", entries[0].OutputPath)
	assert.Equal(t, queue.CodeHandlerException, entries[0].Code)
	assert.Equal(t, "v", entries[0].Context["k"])
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "errors.db")

	first := openStore(t, path)
	require.NoError(t, first.Record(ctx, Entry{Course: "c", InputPath: "a", Code: queue.CodeHandlerException, Message: "x"}))
	require.NoError(t, first.Record(ctx, Entry{Severity: SeverityWarning, Course: "c", InputPath: "b", Code: queue.CodeUnsupportedExtension, Message: "y"}))

	second := openStore(t, path)
	require.NotEqual(t, first.RunID(), second.RunID())
	require.NoError(t, second.Record(ctx, Entry{Course: "c", InputPath: "a", Code: queue.CodeHandlerException, Message: "x"}))

	runs, err := second.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID(), runs[0].ID)
	assert.Equal(t, 1, runs[0].Errors)
	assert.Equal(t, first.RunID(), runs[1].ID)
	assert.Equal(t, 1, runs[1].Errors)
	assert.Equal(t, 1, runs[1].Warnings)
	assert.False(t, runs[1].Started.IsZero())
}
