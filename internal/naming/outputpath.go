package naming

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/backmassage/courseforge/internal/route"
	"github.com/backmassage/courseforge/internal/scan"
)

// Separator replaces path separators when nested directories are flattened
// into a single name segment.
const Separator = "_"

// OutputPath builds the flattened destination path for f under destRoot.
//
//	<course>/CODE/project1/resources/notes.pdf, format ".md"
//	  → <destRoot>/project1_resources_notes.md
//
// The first directory under the course root (the section folder, e.g. CODE
// or DOCS) is not part of the name. The remaining directories are joined
// with Separator and followed by one trailing Separator. When format is
// non-empty and not route.FormatDirectory the original extension is
// replaced by format; otherwise the base name is kept as-is.
//
// OutputPath is pure: it touches no file system state, and identical inputs
// always produce identical output. Distinct sources can flatten to the same
// name (e.g. "a/b_c.txt" and "a/b/c.txt"); see CollisionResolver.
func OutputPath(f scan.File, destRoot, format string) string {
	rel := filepath.ToSlash(f.RelPath)
	base := path.Base(rel)

	var prefix string
	if dir := path.Dir(rel); dir != "." && dir != "/" {
		parts := strings.Split(dir, "/")
		if len(parts) > 1 {
			prefix = strings.Join(parts[1:], Separator) + Separator
		}
	}

	name := base
	if format != "" && format != route.FormatDirectory {
		if !strings.HasPrefix(format, ".") {
			format = "." + format
		}
		name = stem(base) + format
	}
	return filepath.Join(destRoot, prefix+name)
}

// FormatFor returns the output-format override implied by a routing
// decision: the rewrite extension for passthrough, the skill's output
// extension, or route.FormatDirectory for archives.
func FormatFor(d route.Decision) string {
	switch v := d.(type) {
	case route.Passthrough:
		return v.RewriteExt
	case route.Skill:
		return v.OutputExt
	case route.Archive:
		return route.FormatDirectory
	case route.Skip, route.Unsupported:
		return ""
	}
	return ""
}

// stem strips the normalized extension (compound suffixes included) from a
// base name, preserving the original case of the remainder.
func stem(base string) string {
	ext := route.Ext(base)
	if ext == "" {
		return base
	}
	return base[:len(base)-len(ext)]
}
