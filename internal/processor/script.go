package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	stderrTail = 2048        // Bytes of script stderr kept in an error record.
	waitDelay  = time.Second // Grace for orphaned children holding stdout after a kill.
)

// Script runs an external skill script:
//
//	<Python> <SkillsDir>/<skill>/scripts/<script> <input> -o <output> --json
//
// in the job's working directory, and reads the JSON status the script
// prints on stdout.
type Script struct {
	Python    string            // Interpreter, e.g. "python3".
	SkillsDir string            // Root holding one directory per skill.
	Scripts   map[string]string // skill → script file name.
	Stderr    io.Writer         // When set, script stderr is tee'd here live.
}

// Path returns the script for skill, or an error if none is configured.
func (s *Script) Path(skill string) (string, error) {
	name, ok := s.Scripts[skill]
	if !ok || name == "" {
		return "", fmt.Errorf("no script configured for skill %q", skill)
	}
	return filepath.Join(s.SkillsDir, skill, "scripts", name), nil
}

// Args returns the full command line for job.
func (s *Script) Args(job Job) ([]string, error) {
	path, err := s.Path(job.Processor)
	if err != nil {
		return nil, err
	}
	return []string{s.Python, path, job.InputPath, "-o", job.OutputPath, "--json"}, nil
}

// Process implements Processor. A missing script, a status the script did
// not print, and a timeout are non-recoverable; a script reporting
// success=false is recoverable unless it says otherwise.
func (s *Script) Process(ctx context.Context, job Job) (Outcome, error) {
	args, err := s.Args(job)
	if err != nil {
		return Failed(invocationFailed(job, err.Error(), false)), nil
	}
	if _, err := os.Stat(args[1]); err != nil {
		return Failed(invocationFailed(job, "skill script missing: "+args[1], false)), nil
	}
	if err := ensureParent(job.OutputPath); err != nil {
		return Failed(invocationFailed(job, err.Error(), true)), nil
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = job.WorkDir
	cmd.WaitDelay = waitDelay

	var stdout, stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	if s.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderrBuf, s.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}

	runErr := cmd.Run()
	if ctx.Err() != nil {
		rec := invocationFailed(job, fmt.Sprintf("timed out after %s", job.Timeout), false)
		return Failed(rec), nil
	}
	var execErr *exec.Error
	if errors.As(runErr, &execErr) {
		return Failed(invocationFailed(job, "cannot start interpreter: "+execErr.Error(), false)), nil
	}

	st, payload, perr := ParseStatus(stdout.Bytes())
	if perr != nil {
		msg := perr.Error()
		if runErr != nil {
			msg = runErr.Error() + "; " + msg
		}
		rec := invocationFailed(job, msg, false)
		if tail := tailOf(stderrBuf.String()); tail != "" {
			rec.With("stderr", tail)
		}
		return Failed(rec), nil
	}

	if !st.Success {
		msg := st.Error
		if msg == "" {
			msg = "script reported failure"
			if runErr != nil {
				msg += ": " + runErr.Error()
			}
		}
		recoverable := st.Recoverable == nil || *st.Recoverable
		rec := invocationFailed(job, msg, recoverable)
		if tail := tailOf(stderrBuf.String()); tail != "" {
			rec.With("stderr", tail)
		}
		return Outcome{Error: rec, Warnings: st.Warnings, Payload: payload}, nil
	}

	warnings := append([]string(nil), st.Warnings...)
	if st.ExtractedFiles > 0 {
		warnings = append(warnings, fmt.Sprintf("extracted %d file(s); contents are not reprocessed", st.ExtractedFiles))
	}
	return Outcome{Success: true, Payload: payload, Warnings: warnings}, nil
}

// --- JSON status wire type ---

// Status is the JSON object a skill script prints on stdout.
type Status struct {
	Success        bool     `json:"success"`
	Output         string   `json:"output"`
	Error          string   `json:"error"`
	Recoverable    *bool    `json:"recoverable"`
	Warnings       []string `json:"warnings"`
	ExtractedFiles int      `json:"extracted_files"`
}

// ParseStatus finds the status object in a script's stdout. The whole
// output is tried first (scripts may pretty-print); otherwise the last line
// that decodes as a JSON object wins, so log lines before it are ignored.
// The raw object is returned as the payload.
func ParseStatus(out []byte) (Status, map[string]any, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return Status{}, nil, errors.New("script printed no status")
	}
	if st, payload, err := decodeStatus(trimmed); err == nil {
		return st, payload, nil
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		if st, payload, err := decodeStatus(line); err == nil {
			return st, payload, nil
		}
	}
	return Status{}, nil, fmt.Errorf("unparsable script status: %q", firstLine(string(trimmed)))
}

func decodeStatus(data []byte) (Status, map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Status{}, nil, err
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, nil, err
	}
	// Scripts that only report {"error": ...} have failed.
	if _, ok := payload["success"]; !ok && st.Error == "" {
		return Status{}, nil, errors.New(`status has no "success" field`)
	}
	return st, payload, nil
}

func tailOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
