// Command courseforge is the CLI entrypoint for the course content
// pipeline.
//
// It resolves configuration from flags, the optional courseforge.yaml and
// defaults, validates paths, and then runs one of the subcommands: the
// batch run (default), plan, check or errors.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/courseforge/internal/check"
	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/display"
	"github.com/backmassage/courseforge/internal/errlog"
	"github.com/backmassage/courseforge/internal/pipeline"
	"github.com/backmassage/courseforge/internal/processor"
)

func main() {
	os.Exit(run())
}

func run() int {
	a := newApp()
	if err := a.root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "courseforge: %v\n", err)
		if a.code == 0 {
			return 1
		}
	}
	return a.code
}

// runPipeline is the batch run.
func (a *app) runPipeline(args []string) error {
	// Phase 1: Bootstrap. Config errors go to stderr through cobra.
	if err := a.bootstrap(args, true); err != nil {
		return err
	}
	cfg := &a.cfg
	log := a.log

	// Phase 2: Logger available; all output goes through log from here on.
	display.PrintBanner(os.Stdout)

	inputAbs, err := absPath(cfg.InputDir)
	if err != nil {
		log.Error("Input not found: %s", cfg.InputDir)
		a.code = 1
		return nil
	}
	var outputAbs string
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			log.Error("Cannot create output directory: %s", cfg.OutputDir)
			a.code = 1
			return nil
		}
		if outputAbs, err = absPath(cfg.OutputDir); err != nil {
			log.Error("Cannot resolve output path: %s", cfg.OutputDir)
			a.code = 1
			return nil
		}
	}
	if err := cfg.ValidatePaths(inputAbs, outputAbs); err != nil {
		log.Error("%v", err)
		a.code = 1
		return nil
	}

	log.Info("=== courseforge v%s ===", config.Version)
	log.Info("In:  %s", cfg.InputDir)
	if cfg.OutputDir != "" {
		log.Info("Out: %s", cfg.OutputDir)
	}
	if cfg.ConfigFile != "" {
		log.Info("Config: %s", cfg.ConfigFile)
	}
	if cfg.DryRun {
		log.Warn("DRY RUN: no files will be written")
	}

	// Script-backed files fail item by item when their script is missing,
	// so a broken skills setup is reported but does not stop the run.
	if err := check.CheckDeps(cfg); err != nil {
		log.Warn("Skill scripts not fully available: %v", err)
	}

	var errs pipeline.ErrorLog
	if !cfg.DryRun {
		store, err := errlog.Open(cfg.ErrorDBPath())
		if err != nil {
			log.Warn("Error log disabled: %v", err)
		} else {
			defer store.Close()
			errs = store
		}
	}

	// Phase 3: Signal handling. Cancel on SIGINT/SIGTERM so the pool stops
	// taking work and in-flight calls finish.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Received interrupt, finishing in-flight files…")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Phase 4: Run the pipeline.
	runner := pipeline.NewRunner(cfg, log, processor.NewDispatcher(cfg), errs)
	stats, err := runner.Run(ctx)
	if err != nil {
		log.Error("%v", err)
		a.code = 1
		return nil
	}
	a.code = stats.ExitCode()
	return nil
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of input vs output directory hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
