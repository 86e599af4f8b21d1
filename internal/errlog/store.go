// Package errlog persists terminal item failures and routing warnings to a
// SQLite database so they can be inspected after a run.
package errlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/backmassage/courseforge/internal/queue"
)

// Severity separates terminal failures from warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Entry is one recorded problem.
type Entry struct {
	ID          int64
	RunID       string
	Severity    Severity
	Course      string
	InputPath   string
	OutputPath  string
	Code        queue.ErrorCode
	Message     string
	Recoverable bool
	Attempts    int
	Context     map[string]string
	RecordedAt  time.Time
}

// Run summarizes one run's entries.
type Run struct {
	ID       string
	Started  time.Time
	Errors   int
	Warnings int
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	RunID    string
	Course   string
	Code     queue.ErrorCode
	Severity Severity
	Limit    int
}

// Store is the SQLite-backed error log.
type Store struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// Open opens (creating if needed) the database at path and starts a new
// run with a fresh id.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open error log %s: %w", path, err)
	}
	s := &Store{db: db, runID: uuid.NewString(), now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init error log %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init() error {
	const schema = `create table if not exists failures (
		id integer primary key autoincrement,
		run_id text not null,
		severity text not null default 'error',
		course text not null,
		input_path text not null,
		output_path text not null default '',
		code text not null,
		message text not null,
		recoverable integer not null default 0,
		attempts integer not null default 0,
		context text not null default '{}',
		recorded_at DATETIME not null
	);
	create index if not exists failures_run on failures(run_id);`
	_, err := s.db.Exec(schema)
	return err
}

// RunID identifies the current run.
func (s *Store) RunID() string { return s.runID }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores one entry under the current run. Empty severity means
// SeverityError.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Severity == "" {
		e.Severity = SeverityError
	}
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return err
	}
	if e.Context == nil {
		ctxJSON = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx,
		`insert into failures (
			run_id, severity, course, input_path, output_path, code, message, recoverable, attempts, context, recorded_at
		) values (?,?,?,?,?,?,?,?,?,?,?)`,
		s.runID, string(e.Severity), e.Course, e.InputPath, e.OutputPath, string(e.Code), e.Message,
		e.Recoverable, e.Attempts, string(ctxJSON), s.now().UTC())
	return err
}

// RecordFailures stores every failed item in items and returns how many
// were written.
func (s *Store) RecordFailures(ctx context.Context, items []*queue.Item) (int, error) {
	n := 0
	for _, it := range items {
		if it.Status() != queue.StatusFailed {
			continue
		}
		rec := it.Err()
		if rec == nil {
			rec = queue.NewError(queue.CodeHandlerException, "failed without error record", false)
		}
		f := it.File()
		err := s.Record(ctx, Entry{
			Course:      f.Course,
			InputPath:   f.AbsPath,
			OutputPath:  it.OutputPath(),
			Code:        rec.Code,
			Message:     rec.Message,
			Recoverable: rec.Recoverable,
			Attempts:    it.Attempts(),
			Context:     rec.Context,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// List returns entries matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	q := `select id, run_id, severity, course, input_path, output_path, code, message,
		recoverable, attempts, context, recorded_at from failures where 1=1`
	var args []interface{}
	if f.RunID != "" {
		q += " and run_id = ?"
		args = append(args, f.RunID)
	}
	if f.Course != "" {
		q += " and course = ?"
		args = append(args, f.Course)
	}
	if f.Code != "" {
		q += " and code = ?"
		args = append(args, string(f.Code))
	}
	if f.Severity != "" {
		q += " and severity = ?"
		args = append(args, string(f.Severity))
	}
	q += " order by id desc"
	if f.Limit > 0 {
		q += fmt.Sprintf(" limit %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var sev, code, ctxJSON string
		if err := rows.Scan(&e.ID, &e.RunID, &sev, &e.Course, &e.InputPath, &e.OutputPath, &code,
			&e.Message, &e.Recoverable, &e.Attempts, &ctxJSON, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Severity = Severity(sev)
		e.Code = queue.ErrorCode(code)
		if ctxJSON != "" && ctxJSON != "{}" {
			if err := json.Unmarshal([]byte(ctxJSON), &e.Context); err != nil {
				return nil, fmt.Errorf("entry %d context: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Runs summarizes every run in the log, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `select run_id, min(id),
			min(recorded_at),
			sum(case when severity = 'error' then 1 else 0 end),
			sum(case when severity = 'warning' then 1 else 0 end)
		from failures group by run_id order by min(id) desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var first int64
		var started string
		if err := rows.Scan(&r.ID, &first, &started, &r.Errors, &r.Warnings); err != nil {
			return nil, err
		}
		r.Started = parseTime(started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseTime reads the text form go-sqlite3 stores for time.Time values.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
