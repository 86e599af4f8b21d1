// Package config holds runtime configuration: defaults, the optional YAML
// config file, CLI flag binding, and validation.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/courseforge/internal/naming"
)

// --- Enum types for validated string fields ---

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Limits for Workers.
const (
	MinWorkers = 1
	MaxWorkers = 32
)

// DefaultFileName is looked up in the input directory when --config is not
// given.
const DefaultFileName = "courseforge.yaml"

// Config holds all runtime settings. It is populated by [DefaultConfig],
// then by the config file, then by CLI flags, before being passed (by
// pointer) to packages that need it.
type Config struct {
	// Paths (set from positional args).
	InputDir   string `yaml:"-"`
	OutputDir  string `yaml:"output_dir"` // Empty: each course writes into <course>/<ValidatedDir>.
	ConfigFile string `yaml:"-"`

	// Execution.
	Workers     int           `yaml:"workers"`      // Default: 4. Concurrency limit per course.
	MaxAttempts int           `yaml:"max_attempts"` // Default: 3.
	Timeout     time.Duration `yaml:"timeout"`      // Default: 2m per processor call.

	// Processors.
	SkillsDir    string            `yaml:"skills_dir"`    // Default: "skills".
	Python       string            `yaml:"python"`        // Default: "python3".
	SkillScripts map[string]string `yaml:"skill_scripts"` // skill → script under <skills>/<skill>/scripts/.

	// Scanning and naming.
	Exclude      []string `yaml:"exclude"`       // Glob patterns; "dir/" excludes a subtree.
	OutputPrefix string   `yaml:"output_prefix"` // Default: "__cc". Entries with it are never scanned.
	ValidatedDir string   `yaml:"validated_dir"` // Default: "__cc_validated_files".
	Collision    string   `yaml:"collision"`     // Default: "suffix".

	// Behavior flags.
	DryRun       bool `yaml:"dry_run"`
	SkipExisting bool `yaml:"skip_existing"` // Default: true. Cleared by --force.

	// Display and logging.
	Verbose   bool      `yaml:"verbose"`
	ColorMode ColorMode `yaml:"color"`    // Default: "auto".
	LogFile   string    `yaml:"log_file"` // Optional log file path.
	ErrorDB   string    `yaml:"error_db"` // Default: <output root>/__cc_errors.db.
}

// DefaultSkillScripts maps each script-backed skill to its entry point.
// html and database are handled in-process and need no script.
func DefaultSkillScripts() map[string]string {
	return map[string]string{
		"pdf":     "extract_text.py",
		"docx":    "extract_text.py",
		"pptx":    "extract_text.py",
		"xlsx":    "to_csv.py",
		"image":   "describe_image.py",
		"archive": "extract_archive.py",
	}
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// the config file and CLI flags apply overrides.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		MaxAttempts:  3,
		Timeout:      2 * time.Minute,
		SkillsDir:    "skills",
		Python:       "python3",
		SkillScripts: DefaultSkillScripts(),
		OutputPrefix: "__cc",
		ValidatedDir: "__cc_validated_files",
		Collision:    string(naming.CollisionSuffix),
		SkipExisting: true,
		ColorMode:    ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks numeric ranges and enum fields, and that an input
// directory was given.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("need input_dir")
	}
	if c.Workers < MinWorkers || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d (got %d)", MinWorkers, MaxWorkers, c.Workers)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1 (got %d)", c.MaxAttempts)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %s)", c.Timeout)
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", c.ColorMode)
	}
	if _, err := naming.ParseCollisionPolicy(c.Collision); err != nil {
		return err
	}

	if c.OutputPrefix == "" {
		return errors.New("output prefix must not be empty")
	}
	if !strings.HasPrefix(c.ValidatedDir, c.OutputPrefix) {
		return fmt.Errorf("validated dir %q must start with the output prefix %q", c.ValidatedDir, c.OutputPrefix)
	}
	for _, p := range c.Exclude {
		if _, err := filepath.Match(strings.TrimSuffix(p, "/"), ""); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	return nil
}

// ValidatePaths ensures the resolved output directory cannot be picked up by
// a later scan of the input directory. Output inside input is only allowed
// when some directory on the way down carries the output prefix, since the
// scanner never descends into those. Both arguments must be absolute,
// symlink-resolved paths; an empty outputAbs means in-tree output and is
// always valid.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	if outputAbs == "" {
		return nil
	}
	if outputAbs == inputAbs {
		return errors.New("output directory must not be the input directory")
	}
	rel, err := filepath.Rel(inputAbs, outputAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, c.OutputPrefix) {
			return nil
		}
	}
	return fmt.Errorf("output directory inside input must sit under a %q-prefixed directory", c.OutputPrefix)
}

// CourseOutputDir returns the destination root for one course.
func (c *Config) CourseOutputDir(courseName, coursePath string) string {
	if c.OutputDir != "" {
		return filepath.Join(c.OutputDir, courseName)
	}
	return filepath.Join(coursePath, c.ValidatedDir)
}

// ErrorDBPath returns where the error log lives.
func (c *Config) ErrorDBPath() string {
	if c.ErrorDB != "" {
		return c.ErrorDB
	}
	root := c.OutputDir
	if root == "" {
		root = c.InputDir
	}
	return filepath.Join(root, c.OutputPrefix+"_errors.db")
}
