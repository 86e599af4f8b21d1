// Package scan walks course directories, classifies every regular file by
// extension, and discovers the courses under an input root.
//
// The scanner only looks at names, sizes and the regular/directory
// distinction. It never opens files.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/backmassage/courseforge/internal/route"
)

// DefaultOutputPrefix marks directories written by this tool. Anything with
// this prefix is never scanned.
const DefaultOutputPrefix = "__cc"

// ErrNotDirectory is returned when a scan root exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Rules holds the exclusion rule set for a scan. Hidden entries and entries
// starting with OutputPrefix are always excluded; Patterns adds glob
// patterns (filepath.Match syntax) tested against the entry name and against
// its slash-separated path relative to the course root.
type Rules struct {
	OutputPrefix string
	Patterns     []string
}

// DefaultRules returns the implicit exclusions with no extra patterns.
func DefaultRules() Rules {
	return Rules{OutputPrefix: DefaultOutputPrefix}
}

// Excluded reports whether an entry with the given base name and
// course-relative slash path is excluded.
func (r Rules) Excluded(name, rel string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if r.OutputPrefix != "" && strings.HasPrefix(name, r.OutputPrefix) {
		return true
	}
	for _, p := range r.Patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		// "dir/" style patterns exclude a whole subtree.
		if strings.HasSuffix(p, "/") {
			prefix := strings.TrimSuffix(p, "/")
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// Scan walks root recursively and returns every regular file that is not
// excluded by rules and whose category is not video or audio. course is
// stamped on every returned File.
//
// Unreadable subdirectories are logged and skipped; the walk continues with
// their siblings. Only a missing or unreadable root is an error. Results come
// in directory-entry order and are not sorted.
func Scan(root, course string, rules Rules, log Logger) ([]File, error) {
	root = filepath.Clean(root)
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("scan %q: %w", root, ErrNotDirectory)
	}

	files := make([]File, 0, 64)
	var dropped int
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.Warn("Skipping unreadable path %s: %v", path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rules.Excluded(d.Name(), filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		ext := route.Ext(d.Name())
		cat := route.Classify(ext)
		if route.IsMedia(cat) {
			dropped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Warn("Skipping %s: %v", path, err)
			return nil
		}

		files = append(files, File{
			AbsPath:  path,
			RelPath:  rel,
			Name:     d.Name(),
			Ext:      ext,
			Size:     info.Size(),
			Category: cat,
			Course:   course,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", root, err)
	}
	if dropped > 0 {
		log.Info("%s: dropped %d video/audio file(s)", course, dropped)
	}
	return files, nil
}
