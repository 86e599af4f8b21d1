// Package check provides environment diagnostics (the check command) and
// the pre-run validation (CheckDeps) for the skill script runner: the
// python interpreter, the skills directory, and one script per skill.
package check

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/processor"
)

// Sentinel errors returned by CheckDeps.
var (
	ErrPythonNotFound   = errors.New("python interpreter not found on PATH")
	ErrSkillsDirMissing = errors.New("skills directory not found")
	ErrScriptMissing    = errors.New("skill script missing")
)

// Logger is the minimal logging interface needed by RunCheck.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// ScriptStatus reports one configured skill script.
type ScriptStatus struct {
	Skill   string
	Path    string
	Present bool
}

// RunCheck prints the availability of the interpreter, the skills
// directory and every configured script. It returns false when anything a
// run would need is missing.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")
	ok := checkPython(cfg, log)
	ok = checkSkills(cfg, log) && ok
	log.Info("In-process handlers: passthrough, html, database")
	if ok {
		log.Success("All skill scripts available")
	}
	return ok
}

func checkPython(cfg *config.Config, log Logger) bool {
	path, err := exec.LookPath(cfg.Python)
	if err != nil {
		log.Error("%s not found", cfg.Python)
		return false
	}
	out, err := exec.Command(path, "--version").CombinedOutput()
	if err != nil {
		log.Warn("%s found but --version failed: %v", cfg.Python, err)
		return true
	}
	log.Success("%s: %s", cfg.Python, firstLine(string(out)))
	log.Debug(cfg.Verbose, "  %s", path)
	return true
}

func checkSkills(cfg *config.Config, log Logger) bool {
	if fi, err := os.Stat(cfg.SkillsDir); err != nil || !fi.IsDir() {
		log.Error("Skills directory not found: %s", cfg.SkillsDir)
		return false
	}
	log.Info("Skills: %s", cfg.SkillsDir)
	ok := true
	for _, s := range Scripts(cfg) {
		if s.Present {
			log.Success("  %-8s %s", s.Skill, s.Path)
		} else {
			log.Error("  %-8s missing %s", s.Skill, s.Path)
			ok = false
		}
	}
	return ok
}

// Scripts resolves every configured skill script, sorted by skill.
func Scripts(cfg *config.Config) []ScriptStatus {
	runner := &processor.Script{Python: cfg.Python, SkillsDir: cfg.SkillsDir, Scripts: cfg.SkillScripts}
	skills := make([]string, 0, len(cfg.SkillScripts))
	for skill := range cfg.SkillScripts {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	out := make([]ScriptStatus, 0, len(skills))
	for _, skill := range skills {
		path, err := runner.Path(skill)
		st := ScriptStatus{Skill: skill, Path: path}
		if err == nil {
			fi, statErr := os.Stat(path)
			st.Present = statErr == nil && fi.Mode().IsRegular()
		}
		out = append(out, st)
	}
	return out
}

// CheckDeps is the pre-run validation: the interpreter must be on PATH, the
// skills directory must exist, and every configured script must be present.
// All problems are joined into one error.
func CheckDeps(cfg *config.Config) error {
	var errs []error
	if _, err := exec.LookPath(cfg.Python); err != nil {
		errs = append(errs, fmt.Errorf("%w: %s", ErrPythonNotFound, cfg.Python))
	}
	if fi, err := os.Stat(cfg.SkillsDir); err != nil || !fi.IsDir() {
		return errors.Join(append(errs, fmt.Errorf("%w: %s", ErrSkillsDirMissing, cfg.SkillsDir))...)
	}
	for _, s := range Scripts(cfg) {
		if !s.Present {
			errs = append(errs, fmt.Errorf("%w: %s (%s)", ErrScriptMissing, s.Skill, s.Path))
		}
	}
	return errors.Join(errs...)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
