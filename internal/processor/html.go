package processor

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTML converts an HTML page into Markdown: title, headings, paragraphs,
// list items and preformatted blocks, in document order. Scripts, styles
// and navigation chrome are dropped.
type HTML struct{}

// Process implements Processor.
func (HTML) Process(ctx context.Context, job Job) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	raw, err := os.ReadFile(job.InputPath)
	if err != nil {
		return Failed(invocationFailed(job, err.Error(), false)), nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Failed(invocationFailed(job, "parse html: "+err.Error(), false)), nil
	}

	md, blocks := htmlToMarkdown(doc)
	var warnings []string
	if blocks == 0 {
		warnings = append(warnings, "no text content found")
	}

	if err := writeOutput(ctx, job.OutputPath, []byte(md)); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Failed(invocationFailed(job, err.Error(), true)), nil
	}
	return Succeeded(map[string]any{"blocks": blocks, "chars": len(md)}, warnings...), nil
}

var headingPrefix = map[string]string{
	"h1": "# ", "h2": "## ", "h3": "### ",
	"h4": "#### ", "h5": "##### ", "h6": "###### ",
}

// htmlToMarkdown renders doc and returns the text with the number of
// content blocks emitted.
func htmlToMarkdown(doc *goquery.Document) (string, int) {
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	var b strings.Builder
	blocks := 0
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		b.WriteString("# " + title + "\n\n")
	}

	doc.Find("body").Find("h1, h2, h3, h4, h5, h6, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		// Blocks nested in another emitted block are rendered by the outer one.
		if s.ParentsFiltered("p, li, pre").Length() > 0 {
			return
		}
		if name == "pre" {
			code := strings.Trim(s.Text(), "\n")
			if code == "" {
				return
			}
			b.WriteString("```\n" + code + "\n```\n\n")
			blocks++
			return
		}
		text := collapse(s.Text())
		if text == "" {
			return
		}
		switch {
		case headingPrefix[name] != "":
			b.WriteString(headingPrefix[name] + text + "\n\n")
		case name == "li":
			b.WriteString("- " + text + "\n")
		case name == "td":
			b.WriteString("| " + text + "\n")
		default:
			b.WriteString(text + "\n\n")
		}
		blocks++
	})
	return strings.TrimRight(b.String(), "\n") + "\n", blocks
}

// collapse trims s and folds internal whitespace runs to one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
