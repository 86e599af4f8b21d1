package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/backmassage/courseforge/internal/check"
	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/display"
	"github.com/backmassage/courseforge/internal/errlog"
	"github.com/backmassage/courseforge/internal/logging"
	"github.com/backmassage/courseforge/internal/pipeline"
	"github.com/backmassage/courseforge/internal/queue"
	"github.com/backmassage/courseforge/internal/term"
)

// app holds the state shared by every subcommand: one Config bound to the
// root's persistent flags, the logger once created, and the exit code.
type app struct {
	root  *cobra.Command
	cfg   config.Config
	flags *config.Flags
	log   *logging.Logger
	code  int
}

func newApp() *app {
	a := &app{cfg: config.DefaultConfig()}
	a.root = &cobra.Command{
		Use:   "courseforge [flags] <input_dir> [output_dir]",
		Short: "Route course files to processors and collect validated outputs",
		Long: `courseforge walks every course directory under input_dir, routes each
file by extension (copy, in-process handler or skill script) and writes the
results to <course>/__cc_validated_files, or to output_dir/<course> when
output_dir is given. Video and audio are skipped.`,
		Version:       config.Version,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(args)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Close()
			}
		},
	}
	a.flags = config.BindFlags(a.root.PersistentFlags(), &a.cfg)
	a.root.AddCommand(a.runCmd(), a.planCmd(), a.checkCmd(), a.errorsCmd())
	return a
}

// bootstrap resolves the config from args, validates it and creates the
// logger. needInput is false for commands that work without an input dir.
func (a *app) bootstrap(args []string, needInput bool) error {
	if err := a.flags.Resolve(&a.cfg, args); err != nil {
		return err
	}
	if needInput || a.cfg.InputDir != "" {
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}
	log, err := logging.NewLogger(&a.cfg)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <input_dir> [output_dir]",
		Short: "Process every course (same as the root command)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(args)
		},
	}
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <input_dir> [output_dir]",
		Short: "Show routing decisions and output paths without processing",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bootstrap(args, true); err != nil {
				return err
			}
			plans, err := pipeline.Plan(&a.cfg, a.log)
			if err != nil {
				a.log.Error("%v", err)
				a.code = 1
				return nil
			}
			pipeline.WritePlan(cmd.OutOrStdout(), plans)

			var queued, unsupported, rejected int
			for _, p := range plans {
				queued += p.Queued()
				unsupported += len(p.Unsupported)
				rejected += len(p.Rejected())
			}
			a.log.Info("%d course(s), %d file(s) to process, %d unsupported, %d rejected",
				len(plans), queued, unsupported, rejected)
			if rejected > 0 {
				a.code = 1
			}
			return nil
		},
	}
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [input_dir]",
		Short: "Check the python interpreter and skill scripts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bootstrap(args, false); err != nil {
				return err
			}
			display.PrintBanner(cmd.OutOrStdout())
			if !check.RunCheck(&a.cfg, a.log) {
				a.code = 1
			}
			return nil
		},
	}
}

func (a *app) errorsCmd() *cobra.Command {
	var (
		runID  string
		course string
		code   string
		limit  int
		last   bool
		runs   bool
		warn   bool
	)
	cmd := &cobra.Command{
		Use:   "errors [input_dir] [output_dir]",
		Short: "List failures recorded in the error log",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bootstrap(args, false); err != nil {
				return err
			}
			if a.cfg.ErrorDB == "" && a.cfg.InputDir == "" {
				return errors.New("need input_dir or --error-db to locate the error log")
			}
			path := a.cfg.ErrorDBPath()
			if _, err := os.Stat(path); err != nil {
				a.log.Info("No error log at %s", path)
				return nil
			}
			store, err := errlog.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()
			if runs {
				all, err := store.Runs(ctx)
				if err != nil {
					return err
				}
				writeRuns(out, all)
				return nil
			}

			f := errlog.Filter{RunID: runID, Course: course, Code: queue.ErrorCode(code), Limit: limit}
			if !warn {
				f.Severity = errlog.SeverityError
			}
			if last {
				all, err := store.Runs(ctx)
				if err != nil {
					return err
				}
				if len(all) == 0 {
					a.log.Info("Error log is empty")
					return nil
				}
				f.RunID = all[0].ID
			}
			entries, err := store.List(ctx, f)
			if err != nil {
				return fmt.Errorf("read error log: %w", err)
			}
			if len(entries) == 0 {
				a.log.Success("No matching entries in %s", path)
				return nil
			}
			writeEntries(out, entries, a.cfg.Verbose)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&runID, "run", "", "Only entries of this run id")
	fs.BoolVar(&last, "last", false, "Only entries of the most recent run")
	fs.StringVar(&course, "course", "", "Only entries of this course")
	fs.StringVar(&code, "code", "", "Only entries with this error code")
	fs.IntVarP(&limit, "limit", "n", 50, "Maximum entries to show (0: all)")
	fs.BoolVar(&warn, "warnings", false, "Include warnings such as unsupported extensions")
	fs.BoolVar(&runs, "runs", false, "Summarize runs instead of listing entries")
	return cmd
}

func writeRuns(w io.Writer, runs []errlog.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "Error log is empty.")
		return
	}
	fmt.Fprintf(w, "  %-36s  %-19s  %6s  %8s\n", "Run", "Started", "Errors", "Warnings")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 36+19+6+8+6))
	for _, r := range runs {
		errs := fmt.Sprintf("%6d", r.Errors)
		if r.Errors > 0 {
			errs = term.Paint(term.Red, errs)
		}
		fmt.Fprintf(w, "  %-36s  %-19s  %s  %8d\n",
			r.ID, r.Started.Local().Format("2006-01-02 15:04:05"), errs, r.Warnings)
	}
}

func writeEntries(w io.Writer, entries []errlog.Entry, verbose bool) {
	for _, e := range entries {
		color := term.Red
		if e.Severity == errlog.SeverityWarning {
			color = term.Yellow
		}
		fmt.Fprintf(w, "%s %s  %s\n",
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			term.Paint(color, "["+string(e.Code)+"]"),
			e.InputPath)
		fmt.Fprintf(w, "    %s", e.Message)
		if e.Attempts > 0 {
			fmt.Fprintf(w, " (attempts: %d)", e.Attempts)
		}
		fmt.Fprintln(w)
		if verbose {
			fmt.Fprintf(w, "    course=%s run=%s\n", e.Course, e.RunID)
			if e.OutputPath != "" {
				fmt.Fprintf(w, "    output=%s\n", e.OutputPath)
			}
			keys := make([]string, 0, len(e.Context))
			for k := range e.Context {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "    %s=%s\n", k, strings.TrimSpace(e.Context[k]))
			}
		}
	}
}
