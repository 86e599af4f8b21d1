package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/naming"
	"github.com/backmassage/courseforge/internal/queue"
	"github.com/backmassage/courseforge/internal/route"
	"github.com/backmassage/courseforge/internal/scan"
	"github.com/backmassage/courseforge/internal/term"
)

// Entry is one routed file with its resolved destination.
type Entry struct {
	File         scan.File
	Decision     route.Decision
	OutputPath   string // Final destination after the collision policy.
	Priority     int
	Collided     bool   // Another file in the course flattened to the same path.
	CollidedWith string // Input that owned the requested path.
	Rejected     bool   // Refused under the reject policy; never submitted.
}

// CoursePlan is everything decided for one course before any processor runs.
type CoursePlan struct {
	Course      scan.Course
	DestRoot    string
	Entries     []Entry
	Unsupported []scan.File
}

// PlanCourse routes files and resolves their destinations under cfg.
// Files are visited in relative-path order so duplicate suffixes are stable
// between runs.
func PlanCourse(cfg *config.Config, course scan.Course, files []scan.File) CoursePlan {
	policy, err := naming.ParseCollisionPolicy(cfg.Collision)
	if err != nil {
		policy = naming.CollisionSuffix
	}
	resolver := naming.NewCollisionResolver(policy)

	sorted := make([]scan.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	p := CoursePlan{
		Course:   course,
		DestRoot: cfg.CourseOutputDir(course.Name, course.Path),
	}
	for _, f := range sorted {
		d := route.Decide(f.Ext)
		switch d.(type) {
		case route.Skip:
			continue
		case route.Unsupported:
			p.Unsupported = append(p.Unsupported, f)
			continue
		case route.Passthrough, route.Skill, route.Archive:
		}

		requested := naming.OutputPath(f, p.DestRoot, naming.FormatFor(d))
		claim, err := resolver.Claim(f.AbsPath, requested)
		e := Entry{
			File:         f,
			Decision:     d,
			OutputPath:   claim.Path,
			Priority:     route.Priority(d, f.Category),
			Collided:     claim.Collided,
			CollidedWith: claim.Owner,
			Rejected:     err != nil,
		}
		if e.Rejected {
			e.OutputPath = requested
		}
		p.Entries = append(p.Entries, e)
	}
	return p
}

// Queued counts the entries that Items would submit.
func (p CoursePlan) Queued() int {
	n := 0
	for _, e := range p.Entries {
		if !e.Rejected {
			n++
		}
	}
	return n
}

// Items builds queue items for every entry that was not rejected.
func (p CoursePlan) Items() []*queue.Item {
	items := make([]*queue.Item, 0, p.Queued())
	for _, e := range p.Entries {
		if e.Rejected {
			continue
		}
		items = append(items, queue.NewItem(e.File, e.Decision, e.OutputPath, e.Priority))
	}
	return items
}

// Rejected returns the entries refused by the collision policy.
func (p CoursePlan) Rejected() []Entry {
	var out []Entry
	for _, e := range p.Entries {
		if e.Rejected {
			out = append(out, e)
		}
	}
	return out
}

// Counts tallies entries per category, unsupported files included.
func (p CoursePlan) Counts() map[route.Category]int {
	counts := make(map[route.Category]int)
	for _, e := range p.Entries {
		counts[e.File.Category]++
	}
	for _, f := range p.Unsupported {
		counts[f.Category]++
	}
	return counts
}

// WritePlan prints one table per course: file, method, processor, priority
// and destination relative to the course's output root, followed by the
// per-category counts.
func WritePlan(w io.Writer, plans []CoursePlan) {
	for _, p := range plans {
		fmt.Fprintf(w, "%s -> %s\n", term.Paint(term.Bold, p.Course.Name), p.DestRoot)
		writeTable(w, p)
		writeCounts(w, p.Counts())
		fmt.Fprintln(w)
	}
}

type planRow struct {
	file, method, proc, prio, dest, flag string
}

func writeTable(w io.Writer, p CoursePlan) {
	rows := make([]planRow, 0, len(p.Entries)+len(p.Unsupported))
	entries := make([]Entry, len(p.Entries))
	copy(entries, p.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority < entries[j].Priority })

	for _, e := range entries {
		r := planRow{
			file:   e.File.RelPath,
			method: string(e.Decision.Method()),
			proc:   route.Processor(e.Decision),
			prio:   fmt.Sprintf("%d", e.Priority),
			dest:   relTo(p.DestRoot, e.OutputPath),
		}
		switch {
		case e.Rejected:
			r.flag = term.Paint(term.Red, "[collision: rejected]")
		case e.Collided:
			r.flag = term.Paint(term.Orange, "[collision]")
		}
		rows = append(rows, r)
	}
	for _, f := range p.Unsupported {
		rows = append(rows, planRow{
			file:   f.RelPath,
			method: string(route.MethodUnsupported),
			proc:   "-",
			prio:   "-",
			dest:   "-",
			flag:   term.Paint(term.Yellow, "[unsupported]"),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "  (no files)")
		return
	}

	fileW, methodW, procW, prioW := len("File"), len("Method"), len("Processor"), len("Prio")
	for _, r := range rows {
		fileW = max(fileW, len(r.file))
		methodW = max(methodW, len(r.method))
		procW = max(procW, len(r.proc))
		prioW = max(prioW, len(r.prio))
	}
	fileW = min(fileW, max(term.Width()/2, 20))

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %*s  %s",
		fileW, "File", methodW, "Method", procW, "Processor", prioW, "Prio", "Output")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2))
	for _, r := range rows {
		name := r.file
		if len(name) > fileW {
			name = "…" + name[len(name)-fileW+1:]
		}
		line := fmt.Sprintf("  %-*s  %-*s  %-*s  %*s  %s",
			fileW, name, methodW, r.method, procW, r.proc, prioW, r.prio, r.dest)
		if r.flag != "" {
			line += "  " + r.flag
		}
		fmt.Fprintln(w, line)
	}
}

func writeCounts(w io.Writer, counts map[route.Category]int) {
	parts := make([]string, 0, len(counts))
	for _, c := range route.Categories {
		if n := counts[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c, n))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, " "))
	}
}

func relTo(root, path string) string {
	if rel, ok := strings.CutPrefix(path, root); ok {
		return strings.TrimLeft(rel, `/\`)
	}
	return path
}
