package processor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/route"
)

// ErrNoProcessor is returned when a job names a processor nothing handles.
var ErrNoProcessor = errors.New("no processor registered")

// Dispatcher routes each job to a collaborator by processor id: the
// passthrough copier, one of the in-process handlers, or the skill script
// runner as fallback.
type Dispatcher struct {
	Passthrough  Processor
	Native       map[string]Processor // processor id → in-process handler
	Fallback     Processor            // used for any other id; may be nil
	SkipExisting bool                 // Skip jobs whose output already exists.
	DryRun       bool                 // Report success without doing anything.
}

// NewDispatcher builds the standard dispatcher from cfg: Copy for
// passthrough, HTML and SQLite in-process, skill scripts for the rest.
// When verbose, script stderr is streamed to os.Stderr.
func NewDispatcher(cfg *config.Config) *Dispatcher {
	script := &Script{
		Python:    cfg.Python,
		SkillsDir: cfg.SkillsDir,
		Scripts:   cfg.SkillScripts,
	}
	if cfg.Verbose {
		script.Stderr = os.Stderr
	}
	return &Dispatcher{
		Passthrough: Copy{},
		Native: map[string]Processor{
			"html":     HTML{},
			"database": SQLite{},
		},
		Fallback:     script,
		SkipExisting: cfg.SkipExisting,
		DryRun:       cfg.DryRun,
	}
}

// Process implements Processor.
func (d *Dispatcher) Process(ctx context.Context, job Job) (Outcome, error) {
	if d.SkipExisting {
		if _, err := os.Stat(job.OutputPath); err == nil {
			return Skipped("output exists"), nil
		}
	}
	p, err := d.pick(job.Processor)
	if err != nil {
		return Outcome{}, err
	}
	if d.DryRun {
		return Succeeded(map[string]any{"dry_run": true}), nil
	}
	return p.Process(ctx, job)
}

func (d *Dispatcher) pick(id string) (Processor, error) {
	if id == string(route.MethodPassthrough) {
		if d.Passthrough == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoProcessor, id)
		}
		return d.Passthrough, nil
	}
	if p, ok := d.Native[id]; ok {
		return p, nil
	}
	if d.Fallback == nil || id == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoProcessor, id)
	}
	return d.Fallback, nil
}
