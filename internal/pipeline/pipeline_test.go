package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/errlog"
	"github.com/backmassage/courseforge/internal/logging"
	"github.com/backmassage/courseforge/internal/processor"
	"github.com/backmassage/courseforge/internal/queue"
	"github.com/backmassage/courseforge/internal/route"
	"github.com/backmassage/courseforge/internal/scan"
)

func testConfig(t *testing.T, input string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InputDir = input
	cfg.OutputDir = t.TempDir()
	cfg.Workers = 2
	return &cfg
}

func openLog(t *testing.T) *errlog.Store {
	t.Helper()
	s, err := errlog.Open(filepath.Join(t.TempDir(), "errors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Runner tests ---

func TestRun_CourseIsolation(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "algebra/notes.xyz")
	touch(t, root, "biology/readme.txt")
	cfg := testConfig(t, root)
	store := openLog(t)

	stats, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Total, "unsupported file is never enqueued")
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Unsupported)
	assert.Equal(t, 0, stats.ExitCode())
	require.Len(t, stats.Courses, 2)
	assert.Equal(t, "algebra", stats.Courses[0].Name)
	assert.Equal(t, 0, stats.Courses[0].Total)
	assert.Equal(t, store.RunID(), stats.RunID)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "biology", "readme.txt"))

	warnings, err := store.List(context.Background(), errlog.Filter{Severity: errlog.SeverityWarning})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, queue.CodeUnsupportedExtension, warnings[0].Code)
	assert.Equal(t, "algebra", warnings[0].Course)
}

func TestRun_MissingInput(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "nope"))
	_, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrInputMissing)
}

func TestRun_NoCourses(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "loose.txt")
	touch(t, root, ".git/HEAD")
	touch(t, root, "__cc_output/old.txt")
	cfg := testConfig(t, root)

	_, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCourses)
}

func TestRun_EmptyCourseIsFine(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "empty"), 0o755)
	cfg := testConfig(t, root)

	stats, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Courses, 1)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.ExitCode())
}

func TestRun_FailuresAreRecorded(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/a.txt")
	touch(t, root, "c/b.py")
	cfg := testConfig(t, root)
	store := openLog(t)

	fail := processor.Func(func(_ context.Context, job processor.Job) (processor.Outcome, error) {
		return processor.Failed(queue.NewError(queue.CodeProcessorInvocationFailed, "broken", false)), nil
	})
	stats, err := NewRunner(cfg, logging.Discard(), fail, store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.ExitCode())

	entries, err := store.List(context.Background(), errlog.Filter{RunID: store.RunID(), Severity: errlog.SeverityError})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRun_RetriesAreCounted(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/a.txt")
	cfg := testConfig(t, root)

	var mu sync.Mutex
	calls := map[string]int{}
	flaky := processor.Func(func(_ context.Context, job processor.Job) (processor.Outcome, error) {
		mu.Lock()
		calls[job.InputPath]++
		n := calls[job.InputPath]
		mu.Unlock()
		if n == 1 {
			return processor.Failed(queue.NewError(queue.CodeProcessorInvocationFailed, "busy", true)), nil
		}
		return processor.Succeeded(nil), nil
	})
	stats, err := NewRunner(cfg, logging.Discard(), flaky, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Retries)
	assert.Equal(t, 0, stats.ExitCode())
}

func TestRun_CollisionSuffix(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/A/x.txt")
	touch(t, root, "c/B/x.txt")
	cfg := testConfig(t, root)

	stats, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Completed)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "c", "x.txt"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "c", "x_dup1.txt"))
}

func TestRun_CollisionReject(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/A/x.txt")
	touch(t, root, "c/B/x.txt")
	cfg := testConfig(t, root)
	cfg.Collision = "reject"
	store := openLog(t)

	stats, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.ExitCode())

	entries, err := store.List(context.Background(), errlog.Filter{Code: queue.CodeOutputCollision})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].InputPath, filepath.Join("B", "x.txt")))
	assert.True(t, strings.HasSuffix(entries[0].Context["owner"], filepath.Join("A", "x.txt")))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/a.txt")
	cfg := testConfig(t, root)
	cfg.DryRun = true

	stats, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Completed)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "c", "a.txt"))
}

func TestRun_SkipExisting(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/a.txt")
	cfg := testConfig(t, root)
	touch(t, cfg.OutputDir, "c/a.txt")

	stats, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Completed)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/x.txt")
	touch(t, root, "b/y.txt")
	cfg := testConfig(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := NewRunner(cfg, logging.Discard(), processor.NewDispatcher(cfg), nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Interrupted)
	assert.Empty(t, stats.Courses, "no course is started after an interrupt")
}

func TestRun_InterruptStopsRemainingCourses(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/x.txt")
	touch(t, root, "b/y.txt")
	cfg := testConfig(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen []string
	var mu sync.Mutex
	proc := processor.Func(func(_ context.Context, job processor.Job) (processor.Outcome, error) {
		mu.Lock()
		seen = append(seen, filepath.Base(job.InputPath))
		mu.Unlock()
		cancel()
		return processor.Succeeded(nil), nil
	})
	stats, err := NewRunner(cfg, logging.Discard(), proc, nil).Run(ctx)
	require.NoError(t, err)

	assert.True(t, stats.Interrupted)
	assert.Equal(t, []string{"x.txt"}, seen)
	require.Len(t, stats.Courses, 1)
	assert.Equal(t, 1, stats.Completed, "the in-flight item finishes")
}

func TestRun_LogsSummary(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/a.txt")
	cfg := testConfig(t, root)
	var buf bytes.Buffer

	_, err := NewRunner(cfg, logging.New(&buf), processor.NewDispatcher(cfg), nil).Run(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Found 1 course(s)")
	assert.Contains(t, out, "[1/1] c")
	assert.Contains(t, out, "All courses processed")
}

// --- Plan tests ---

func TestPlanCourse(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/DOCS/week1/slides.pdf")
	touch(t, root, "c/CODE/main.go")
	touch(t, root, "c/page.html")
	touch(t, root, "c/data.zip")
	touch(t, root, "c/odd.xyz")
	touch(t, root, "c/lecture.mp4")
	cfg := testConfig(t, root)

	course := scan.Course{Name: "c", Path: filepath.Join(root, "c")}
	files, err := scan.Scan(course.Path, course.Name, scan.DefaultRules(), logging.Discard())
	require.NoError(t, err)

	p := PlanCourse(cfg, course, files)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "c"), p.DestRoot)
	require.Len(t, p.Entries, 4)
	require.Len(t, p.Unsupported, 1)
	assert.Equal(t, "odd.xyz", p.Unsupported[0].Name)

	byName := map[string]Entry{}
	for _, e := range p.Entries {
		byName[e.File.Name] = e
	}
	assert.Equal(t, filepath.Join(p.DestRoot, "week1_slides.md"), byName["slides.pdf"].OutputPath)
	assert.Equal(t, filepath.Join(p.DestRoot, "main.go"), byName["main.go"].OutputPath)
	assert.Equal(t, filepath.Join(p.DestRoot, "data.zip"), byName["data.zip"].OutputPath)
	assert.Less(t, byName["main.go"].Priority, byName["page.html"].Priority)
	assert.Less(t, byName["slides.pdf"].Priority, byName["data.zip"].Priority)

	counts := p.Counts()
	assert.Equal(t, 1, counts[route.CategoryDocument])
	assert.Equal(t, 1, counts[route.CategoryUnknown])
	assert.Zero(t, counts[route.CategoryVideo])

	items := p.Items()
	assert.Len(t, items, 4)
	assert.Equal(t, 4, p.Queued())
	assert.Empty(t, p.Rejected())
}

func TestPlanCourse_QueuedSkipsRejected(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c/A/x.txt")
	touch(t, root, "c/B/x.txt")
	touch(t, root, "c/y.txt")
	cfg := testConfig(t, root)
	cfg.Collision = "reject"

	course := scan.Course{Name: "c", Path: filepath.Join(root, "c")}
	files, err := scan.Scan(course.Path, course.Name, scan.DefaultRules(), logging.Discard())
	require.NoError(t, err)

	p := PlanCourse(cfg, course, files)
	require.Len(t, p.Entries, 3)
	assert.Len(t, p.Rejected(), 1)
	assert.Equal(t, 2, p.Queued())
	assert.Len(t, p.Items(), p.Queued())
}

func TestPlanCourse_SuffixesAreStable(t *testing.T) {
	root := t.TempDir()
	course := scan.Course{Name: "c", Path: filepath.Join(root, "c")}
	cfg := testConfig(t, root)
	a := scan.File{AbsPath: filepath.Join(course.Path, "A", "x.txt"), RelPath: filepath.Join("A", "x.txt"), Name: "x.txt", Ext: ".txt", Category: route.CategoryText, Course: "c"}
	b := scan.File{AbsPath: filepath.Join(course.Path, "B", "x.txt"), RelPath: filepath.Join("B", "x.txt"), Name: "x.txt", Ext: ".txt", Category: route.CategoryText, Course: "c"}

	p1 := PlanCourse(cfg, course, []scan.File{a, b})
	p2 := PlanCourse(cfg, course, []scan.File{b, a})
	require.Len(t, p1.Entries, 2)
	for i := range p1.Entries {
		assert.Equal(t, p1.Entries[i].OutputPath, p2.Entries[i].OutputPath)
	}
	assert.True(t, p1.Entries[1].Collided)
	assert.Equal(t, a.AbsPath, p1.Entries[1].CollidedWith)
}

func TestPlanAndWritePlan(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "c1/notes.md")
	touch(t, root, "c1/odd.xyz")
	touch(t, root, "c2/deck.pptx")
	cfg := testConfig(t, root)

	plans, err := Plan(cfg, logging.Discard())
	require.NoError(t, err)
	require.Len(t, plans, 2)

	var buf bytes.Buffer
	WritePlan(&buf, plans)
	out := buf.String()
	assert.Contains(t, out, "notes.md")
	assert.Contains(t, out, "[unsupported]")
	assert.Contains(t, out, "deck.md")
	assert.Contains(t, out, "document=1")
}

func TestPlan_NoCourses(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	_, err := Plan(cfg, logging.Discard())
	assert.ErrorIs(t, err, ErrNoCourses)
}

// --- RunStats tests ---

func TestRunStats_ExitCode(t *testing.T) {
	tests := []struct {
		name  string
		stats RunStats
		want  int
	}{
		{"clean", RunStats{Total: 3, Completed: 3}, 0},
		{"skipped only", RunStats{Total: 1, Skipped: 1}, 0},
		{"unsupported only", RunStats{Unsupported: 2}, 0},
		{"failed", RunStats{Total: 2, Completed: 1, Failed: 1}, 1},
		{"rejected", RunStats{Rejected: 1}, 1},
		{"unreadable course", RunStats{Courses: []CourseStats{{Err: os.ErrPermission}}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunStats_Add(t *testing.T) {
	var s RunStats
	s.add(CourseStats{Total: 2, Completed: 1, Failed: 1, InputBytes: 10, OutputBytes: 4, Retries: 2})
	s.add(CourseStats{Total: 1, Skipped: 1, Unsupported: 3})
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 3, s.Unsupported)
	assert.Equal(t, 2, s.Retries)
	assert.Equal(t, int64(10), s.InputBytes)
	assert.Equal(t, int64(4), s.OutputBytes)
	assert.Len(t, s.Courses, 2)
}

// --- Helpers ---

func touch(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
}
