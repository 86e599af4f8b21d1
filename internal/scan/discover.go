package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DiscoverCourses lists the immediate subdirectories of inputRoot that are
// not hidden, not tool output and not excluded by rules. Each one is an
// independent course. The result is sorted by name so courses run in a
// stable order.
func DiscoverCourses(inputRoot string, rules Rules) ([]Course, error) {
	root, err := filepath.Abs(inputRoot)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("discover courses in %q: %w", inputRoot, err)
	}

	var courses []Course
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if rules.Excluded(e.Name(), e.Name()) {
			continue
		}
		courses = append(courses, Course{
			Name: e.Name(),
			Path: filepath.Join(root, e.Name()),
		})
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Name < courses[j].Name })
	return courses, nil
}
