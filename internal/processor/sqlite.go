package processor

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultSampleRows is how many rows of each table SQLite renders.
const DefaultSampleRows = 10

// SQLite documents a SQLite database as Markdown: one section per table
// with its CREATE statement, row count and a sample of rows. The database
// is opened read-only.
type SQLite struct {
	SampleRows int // 0 means DefaultSampleRows.
}

// Process implements Processor.
func (p SQLite) Process(ctx context.Context, job Job) (Outcome, error) {
	if _, err := os.Stat(job.InputPath); err != nil {
		return Failed(invocationFailed(job, err.Error(), false)), nil
	}
	dsn := "file:" + (&url.URL{Path: job.InputPath}).EscapedPath() + "?mode=ro"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return Failed(invocationFailed(job, err.Error(), false)), nil
	}
	defer db.Close()

	md, tables, err := p.render(ctx, db, job)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Failed(invocationFailed(job, "read database: "+err.Error(), false)), nil
	}

	if err := writeOutput(ctx, job.OutputPath, []byte(md)); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Failed(invocationFailed(job, err.Error(), true)), nil
	}
	var warnings []string
	if tables == 0 {
		warnings = append(warnings, "database has no tables")
	}
	return Succeeded(map[string]any{"tables": tables}, warnings...), nil
}

type tableInfo struct {
	name   string
	schema string
}

func (p SQLite) render(ctx context.Context, db *sql.DB, job Job) (string, int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, COALESCE(sql, '') FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", 0, err
	}
	var tables []tableInfo
	for rows.Next() {
		var t tableInfo
		if err := rows.Scan(&t.name, &t.schema); err != nil {
			rows.Close()
			return "", 0, err
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	limit := p.SampleRows
	if limit <= 0 {
		limit = DefaultSampleRows
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", filepath.Base(job.InputPath))
	fmt.Fprintf(&b, "%d table(s)\n\n", len(tables))
	for _, t := range tables {
		var count int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(t.name)).Scan(&count); err != nil {
			return "", 0, err
		}
		fmt.Fprintf(&b, "## %s\n\n", t.name)
		fmt.Fprintf(&b, "```sql\n%s\n```\n\n", strings.TrimSpace(t.schema))
		fmt.Fprintf(&b, "Rows: %d\n\n", count)
		if count == 0 {
			continue
		}
		if err := writeSample(ctx, &b, db, t.name, limit); err != nil {
			return "", 0, err
		}
	}
	return b.String(), len(tables), nil
}

// writeSample renders up to limit rows of table as a Markdown table.
func writeSample(ctx context.Context, b *strings.Builder, db *sql.DB, table string, limit int) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), limit))
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		cells := make([]string, len(cols))
		for i, v := range vals {
			cells[i] = cell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	b.WriteString("\n")
	return rows.Err()
}

func cell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		s = string(x)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 80 {
		s = string(r[:77]) + "..."
	}
	return s
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
