package scan

import "github.com/backmassage/courseforge/internal/route"

// File is one regular file found under a course root. Values are created by
// Scan and never modified afterwards.
type File struct {
	AbsPath  string         // Absolute path on disk.
	RelPath  string         // Path relative to the course root (OS separators).
	Name     string         // Base name including extension.
	Ext      string         // Normalized extension, see route.Ext.
	Size     int64          // Bytes.
	Category route.Category // Exactly one per file.
	Course   string         // Owning course identifier.
}

// Course is one immediate subdirectory of the input root.
type Course struct {
	Name string // Directory name; used as the course identifier.
	Path string // Absolute path.
}

// Logger is the subset of logging used by the scanner.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
}
