package config

// This file implements CLI flag binding on a pflag.FlagSet (owned by the
// cobra root command) and the precedence merge with the config file.
// Flags are grouped into execution, processors, behavior and display.
// Negated flags (e.g. --force, --no-color) are applied last so they win
// over both defaults and the file.

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Version is shown by --version; override at build time with
// -ldflags "-X github.com/backmassage/courseforge/internal/config.Version=...".
var Version = "0.3.0-dev"

// Flags ties a FlagSet to the Config it writes into.
type Flags struct {
	fs      *pflag.FlagSet
	negated negatedFlags
}

// negatedFlags holds boolean flags that are applied after the file merge.
type negatedFlags struct {
	force      bool
	forceColor bool
	noColor    bool
}

// BindFlags registers all configuration flags on fs. Flag defaults are the
// current values in cfg (normally [DefaultConfig]).
func BindFlags(fs *pflag.FlagSet, cfg *Config) *Flags {
	f := &Flags{fs: fs}
	defineExecutionFlags(fs, cfg)
	defineProcessorFlags(fs, cfg)
	defineBehaviorFlags(fs, cfg, &f.negated)
	defineDisplayFlags(fs, cfg, &f.negated)
	return f
}

// defineExecutionFlags registers -w/--workers, --max-attempts, --timeout.
func defineExecutionFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, fmt.Sprintf("Concurrent processor calls per course (%d-%d)", MinWorkers, MaxWorkers))
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Attempts per file before giving up")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for one processor call")
}

// defineProcessorFlags registers --skills-dir, --python.
func defineProcessorFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.SkillsDir, "skills-dir", cfg.SkillsDir, "Directory holding <skill>/scripts/")
	fs.StringVar(&cfg.Python, "python", cfg.Python, "Interpreter used to run skill scripts")
}

// defineBehaviorFlags registers --config, -x/--exclude, --collision,
// -d/--dry-run, -f/--force.
func defineBehaviorFlags(fs *pflag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.StringVar(&cfg.ConfigFile, "config", "", "Config file (default: <input_dir>/"+DefaultFileName+" if present)")
	fs.StringSliceVarP(&cfg.Exclude, "exclude", "x", cfg.Exclude, "Glob pattern to exclude (repeatable; 'dir/' excludes a subtree)")
	fs.StringVar(&cfg.Collision, "collision", cfg.Collision, "Output name collisions: suffix | reject | overwrite")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "d", cfg.DryRun, "Route and resolve only; write nothing")
	fs.BoolVarP(&n.force, "force", "f", false, "Reprocess files whose output already exists")
}

// defineDisplayFlags registers --color, --no-color, -v/--verbose,
// -l/--log, --error-db.
func defineDisplayFlags(fs *pflag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")
	fs.StringVarP(&cfg.LogFile, "log", "l", cfg.LogFile, "Append logs to file")
	fs.StringVar(&cfg.ErrorDB, "error-db", cfg.ErrorDB, "SQLite error log (default: <output_root>/__cc_errors.db)")
}

// Resolve completes cfg after flag parsing: positional args set the
// directories, the config file fills every value no flag set explicitly,
// and negated flags are applied. Precedence is flags > file > defaults.
func (f *Flags) Resolve(cfg *Config, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("expected <input_dir> [output_dir], got %d arguments", len(args))
	}
	if len(args) > 0 {
		cfg.InputDir = NormalizeDirArg(args[0])
	}
	if len(args) > 1 {
		cfg.OutputDir = NormalizeDirArg(args[1])
	}

	if path := FindFile(cfg.ConfigFile, cfg.InputDir); path != "" {
		fileCfg, err := LoadFile(path, DefaultConfig())
		if err != nil {
			return err
		}
		mergeFile(cfg, &fileCfg, f.fs.Changed, len(args) > 1)
		cfg.ConfigFile = path
	}

	applyNegatedFlags(cfg, &f.negated)
	cfg.Collision = strings.ToLower(cfg.Collision)
	return nil
}

// mergeFile copies every file value whose flag was not set on the command
// line. Fields with no flag always come from the file.
func mergeFile(cfg, file *Config, changed func(string) bool, outputFromArgs bool) {
	if !outputFromArgs {
		cfg.OutputDir = file.OutputDir
	}
	if !changed("workers") {
		cfg.Workers = file.Workers
	}
	if !changed("max-attempts") {
		cfg.MaxAttempts = file.MaxAttempts
	}
	if !changed("timeout") {
		cfg.Timeout = file.Timeout
	}
	if !changed("skills-dir") {
		cfg.SkillsDir = file.SkillsDir
	}
	if !changed("python") {
		cfg.Python = file.Python
	}
	if !changed("exclude") {
		cfg.Exclude = file.Exclude
	}
	if !changed("collision") {
		cfg.Collision = file.Collision
	}
	if !changed("dry-run") {
		cfg.DryRun = file.DryRun
	}
	if !changed("force") {
		cfg.SkipExisting = file.SkipExisting
	}
	if !changed("verbose") {
		cfg.Verbose = file.Verbose
	}
	if !changed("color") && !changed("no-color") {
		cfg.ColorMode = file.ColorMode
	}
	if !changed("log") {
		cfg.LogFile = file.LogFile
	}
	if !changed("error-db") {
		cfg.ErrorDB = file.ErrorDB
	}
	cfg.SkillScripts = file.SkillScripts
	cfg.OutputPrefix = file.OutputPrefix
	cfg.ValidatedDir = file.ValidatedDir
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.force {
		cfg.SkipExisting = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}
