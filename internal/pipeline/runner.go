package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/display"
	"github.com/backmassage/courseforge/internal/errlog"
	"github.com/backmassage/courseforge/internal/logging"
	"github.com/backmassage/courseforge/internal/pool"
	"github.com/backmassage/courseforge/internal/processor"
	"github.com/backmassage/courseforge/internal/queue"
	"github.com/backmassage/courseforge/internal/scan"
)

// Run-aborting conditions.
var (
	ErrInputMissing = errors.New("input directory not found")
	ErrNoCourses    = errors.New("no courses found")
)

// ErrorLog receives warnings and terminal failures. *errlog.Store
// implements it.
type ErrorLog interface {
	RunID() string
	Record(ctx context.Context, e errlog.Entry) error
	RecordFailures(ctx context.Context, items []*queue.Item) (int, error)
}

// Runner processes every course under cfg.InputDir, one course at a time,
// each through its own worker pool.
type Runner struct {
	cfg  *config.Config
	log  *logging.Logger
	proc processor.Processor
	errs ErrorLog // Optional.
}

// NewRunner creates a runner. errs may be nil.
func NewRunner(cfg *config.Config, log *logging.Logger, proc processor.Processor, errs ErrorLog) *Runner {
	return &Runner{cfg: cfg, log: log, proc: proc, errs: errs}
}

// Run discovers courses and processes them in name order. It returns an
// error only for the run-aborting conditions; item failures are counted in
// RunStats. When ctx is cancelled the current course's pool stops taking
// work and the remaining courses are not started.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	start := time.Now()
	var stats RunStats
	if r.errs != nil {
		stats.RunID = r.errs.RunID()
	}

	courses, err := Discover(r.cfg)
	if err != nil {
		return stats, err
	}
	r.logBatchHeader(len(courses))

	for i, c := range courses {
		if ctx.Err() != nil {
			r.log.Warn("Interrupted, %d course(s) not started", len(courses)-i)
			break
		}
		r.log.Course("[%d/%d] %s", i+1, len(courses), c.Name)
		cs := r.runCourse(ctx, c)
		stats.add(cs)
		r.logCourseSummary(cs)
	}

	stats.Interrupted = ctx.Err() != nil
	stats.Duration = time.Since(start)
	r.logSummary(&stats)
	return stats, nil
}

// Discover validates the input root and returns its courses.
func Discover(cfg *config.Config) ([]scan.Course, error) {
	fi, err := os.Stat(cfg.InputDir)
	if err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputMissing, cfg.InputDir)
	}
	courses, err := scan.DiscoverCourses(cfg.InputDir, rules(cfg))
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCourses, cfg.InputDir)
	}
	return courses, nil
}

// Plan scans and plans every course without running any processor.
// Courses that cannot be scanned are logged and left out.
func Plan(cfg *config.Config, log scan.Logger) ([]CoursePlan, error) {
	courses, err := Discover(cfg)
	if err != nil {
		return nil, err
	}
	plans := make([]CoursePlan, 0, len(courses))
	for _, c := range courses {
		files, err := scan.Scan(c.Path, c.Name, rules(cfg), log)
		if err != nil {
			log.Warn("Cannot scan course %s: %v", c.Name, err)
			continue
		}
		plans = append(plans, PlanCourse(cfg, c, files))
	}
	return plans, nil
}

func rules(cfg *config.Config) scan.Rules {
	return scan.Rules{OutputPrefix: cfg.OutputPrefix, Patterns: cfg.Exclude}
}

// runCourse handles one course: scan → plan → submit → wait → aggregate.
func (r *Runner) runCourse(ctx context.Context, c scan.Course) CourseStats {
	start := time.Now()
	cs := CourseStats{Name: c.Name}
	recCtx := context.WithoutCancel(ctx)

	files, err := scan.Scan(c.Path, c.Name, rules(r.cfg), r.log)
	if err != nil {
		r.log.Error("Cannot scan course %s: %v", c.Name, err)
		cs.Err = err
		return cs
	}
	cs.Scanned = len(files)

	plan := PlanCourse(r.cfg, c, files)
	r.reportPlanProblems(recCtx, plan, &cs)

	items := plan.Items()
	if len(items) == 0 {
		r.log.Info("Nothing to process in %s", c.Name)
	} else {
		r.log.Info("%d file(s) queued -> %s", len(items), plan.DestRoot)
	}

	p, err := pool.New(r.cfg.Workers, r.proc, pool.Policy{MaxAttempts: r.cfg.MaxAttempts},
		pool.WithTimeout(r.cfg.Timeout),
		pool.WithWorkDir(c.Path),
		pool.WithLogger(r.log),
		pool.WithProgress(r.progress),
	)
	if err != nil {
		r.log.Error("Cannot start workers for %s: %v", c.Name, err)
		cs.Err = err
		return cs
	}
	if err := p.SubmitMany(items); err != nil {
		r.log.Error("Cannot queue %s: %v", c.Name, err)
		cs.Err = err
		return cs
	}
	if err := p.Start(ctx); err != nil {
		cs.Err = err
		return cs
	}

	stop := context.AfterFunc(ctx, func() {
		r.log.Warn("Interrupted, finishing in-flight items of %s", c.Name)
		p.Shutdown()
	})
	results := p.WaitForCompletion()
	stop()

	all := p.Queue().Items()
	cs.collect(p.Stats(), all, results)

	if r.errs != nil {
		if _, err := r.errs.RecordFailures(recCtx, all); err != nil {
			r.log.Warn("Cannot write error log: %v", err)
		}
	}
	cs.Duration = time.Since(start)
	return cs
}

// reportPlanProblems logs unsupported files and collisions and records them
// in the error log.
func (r *Runner) reportPlanProblems(ctx context.Context, plan CoursePlan, cs *CourseStats) {
	for _, f := range plan.Unsupported {
		cs.Unsupported++
		r.log.Warn("Unsupported: %s (no handler for %q)", f.RelPath, f.Ext)
		r.record(ctx, errlog.Entry{
			Severity:  errlog.SeverityWarning,
			Course:    f.Course,
			InputPath: f.AbsPath,
			Code:      queue.CodeUnsupportedExtension,
			Message:   fmt.Sprintf("no handler for extension %q", f.Ext),
		})
	}
	for _, e := range plan.Entries {
		switch {
		case e.Rejected:
			cs.Rejected++
			r.log.Error("Output collision: %s -> %s already claimed by %s",
				e.File.RelPath, filepath.Base(e.OutputPath), e.CollidedWith)
			r.record(ctx, errlog.Entry{
				Course:     e.File.Course,
				InputPath:  e.File.AbsPath,
				OutputPath: e.OutputPath,
				Code:       queue.CodeOutputCollision,
				Message:    "output path already claimed",
				Context:    map[string]string{"owner": e.CollidedWith},
			})
		case e.Collided:
			r.log.Warn("Output collision: %s -> %s", e.File.RelPath, filepath.Base(e.OutputPath))
		}
	}
}

func (r *Runner) record(ctx context.Context, e errlog.Entry) {
	if r.errs == nil {
		return
	}
	if err := r.errs.Record(ctx, e); err != nil {
		r.log.Warn("Cannot write error log: %v", err)
	}
}

// progress runs on worker goroutines; the logger serializes writes.
func (r *Runner) progress(pr pool.Progress) {
	res := pr.Result
	rel := pr.Item.File().RelPath
	done := pr.Stats.Completed + pr.Stats.Failed + pr.Stats.Skipped

	switch {
	case res.Success && r.cfg.DryRun:
		r.log.Success("[DRY] [%d/%d] %s -> %s", done, pr.Stats.Total, rel, filepath.Base(res.OutputPath))
	case res.Success:
		r.log.Success("[%d/%d] %s (%s in %s)", done, pr.Stats.Total, rel,
			display.FormatBytes(res.OutputSize), display.FormatDuration(res.Duration))
	case res.Skipped:
		r.log.Info("[%d/%d] Skip (%s): %s", done, pr.Stats.Total, res.SkipReason, rel)
	}
	for _, w := range res.Warnings {
		r.log.Warn("%s: %s", rel, w)
	}
	if res.Success {
		r.log.Debug(r.cfg.Verbose, "  -> %s", res.OutputPath)
	}
}

// --- Logging helpers ---

func (r *Runner) logBatchHeader(courses int) {
	cfg := r.cfg
	r.log.Info("Found %d course(s) in %s", courses, cfg.InputDir)
	if cfg.OutputDir != "" {
		r.log.Info("Output: %s/<course>", cfg.OutputDir)
	} else {
		r.log.Info("Output: <course>/%s", cfg.ValidatedDir)
	}
	r.log.Info("Workers: %d, attempts: %d, timeout: %s", cfg.Workers, cfg.MaxAttempts, cfg.Timeout)
	r.log.Info("Collisions: %s", cfg.Collision)
	if cfg.DryRun {
		r.log.Info("Dry run: processors are not invoked")
	}
	if !cfg.SkipExisting {
		r.log.Info("Force: existing outputs are rebuilt")
	}
	if r.errs != nil {
		r.log.Debug(cfg.Verbose, "Error log run: %s", r.errs.RunID())
	}
}

func (r *Runner) logCourseSummary(cs CourseStats) {
	if cs.Err != nil {
		return
	}
	r.log.Info("%s: %d completed, %d skipped, %d failed, %d unsupported in %s",
		cs.Name, cs.Completed, cs.Skipped, cs.Failed, cs.Unsupported, display.FormatDuration(cs.Duration))
}

func (r *Runner) logSummary(s *RunStats) {
	r.log.Info("Summary")
	r.log.Info("  Courses:     %d (%d unreadable)", len(s.Courses), s.FailedCourses())
	r.log.Info("  Queued:      %d", s.Total)
	r.log.Info("  Completed:   %d (%s)", s.Completed, display.Percent(s.Completed, s.Total))
	r.log.Info("  Skipped:     %d", s.Skipped)
	r.log.Info("  Failed:      %d", s.Failed)
	r.log.Info("  Retries:     %d", s.Retries)
	r.log.Info("  Unsupported: %d", s.Unsupported)
	if s.Rejected > 0 {
		r.log.Info("  Rejected:    %d", s.Rejected)
	}
	if s.Completed > 0 && !r.cfg.DryRun {
		r.log.Info("  Input:       %s", display.FormatBytes(s.InputBytes))
		r.log.Info("  Output:      %s", display.FormatBytes(s.OutputBytes))
	}
	r.log.Info("  Elapsed:     %s", display.FormatDuration(s.Duration))

	switch {
	case s.Interrupted:
		r.log.Warn("Run interrupted, %d item(s) left pending", s.Pending)
	case s.ExitCode() != 0 && r.errs != nil:
		r.log.Error("Run finished with failures; see %s (run %s)", r.cfg.ErrorDBPath(), r.errs.RunID())
	case s.ExitCode() != 0:
		r.log.Error("Run finished with failures")
	default:
		r.log.Success("All courses processed")
	}
}
