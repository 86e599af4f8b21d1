package route

import "strings"

// Method names the handling strategy of a Decision.
type Method string

const (
	MethodPassthrough Method = "passthrough"
	MethodSkill       Method = "skill"
	MethodArchive     Method = "archive"
	MethodSkip        Method = "skip"
	MethodUnsupported Method = "unsupported"
)

// FormatDirectory is the output format of archive extraction: the result is
// a directory, not a file with an extension.
const FormatDirectory = "directory"

// ArchiveProcessor is the skill name that turns a skill entry into an
// Archive decision.
const ArchiveProcessor = "archive"

// Decision is the routing outcome for one extension. The set of
// implementations is closed: Passthrough, Skill, Archive, Skip, Unsupported.
// Consumers switch on the concrete type and must handle all five.
type Decision interface {
	Method() Method
	sealed()
}

// Passthrough copies the file as-is. RewriteExt, when non-empty, replaces the
// extension of the destination name.
type Passthrough struct {
	RewriteExt string
}

// Skill delegates to a named processor producing a file with OutputExt.
type Skill struct {
	Processor string
	OutputExt string
}

// Archive delegates to an extraction processor; the output is a directory.
type Archive struct {
	Processor string
}

// Skip marks media that never reaches the queue.
type Skip struct {
	Category Category
}

// Unsupported has no known handler.
type Unsupported struct {
	Ext string
}

func (Passthrough) Method() Method { return MethodPassthrough }
func (Skill) Method() Method       { return MethodSkill }
func (Archive) Method() Method     { return MethodArchive }
func (Skip) Method() Method        { return MethodSkip }
func (Unsupported) Method() Method { return MethodUnsupported }

func (Passthrough) sealed() {}
func (Skill) sealed()       {}
func (Archive) sealed()     {}
func (Skip) sealed()        {}
func (Unsupported) sealed() {}

// skillEntry is one row of the skill table.
type skillEntry struct {
	processor string
	outputExt string
}

// passthroughRewrite renames a few text extensions on copy.
var passthroughRewrite = map[string]string{
	".markdown": ".md",
	".text":     ".txt",
}

// skillByExt maps extensions to the processor that handles them.
var skillByExt = map[string]skillEntry{
	".pdf":  {"pdf", ".md"},
	".docx": {"docx", ".md"},
	".doc":  {"docx", ".md"},
	".pptx": {"pptx", ".md"},
	".ppt":  {"pptx", ".md"},
	".xlsx": {"xlsx", ".csv"},
	".xls":  {"xlsx", ".csv"},

	".db":      {"database", ".md"},
	".sqlite":  {"database", ".md"},
	".sqlite3": {"database", ".md"},

	".png":  {"image", ".md"},
	".jpg":  {"image", ".md"},
	".jpeg": {"image", ".md"},
	".gif":  {"image", ".md"},
	".bmp":  {"image", ".md"},
	".webp": {"image", ".md"},
	".tif":  {"image", ".md"},
	".tiff": {"image", ".md"},

	".html":  {"html", ".md"},
	".htm":   {"html", ".md"},
	".xhtml": {"html", ".md"},

	".zip":     {ArchiveProcessor, FormatDirectory},
	".tar":     {ArchiveProcessor, FormatDirectory},
	".tgz":     {ArchiveProcessor, FormatDirectory},
	".gz":      {ArchiveProcessor, FormatDirectory},
	".tar.gz":  {ArchiveProcessor, FormatDirectory},
	".tar.bz2": {ArchiveProcessor, FormatDirectory},
	".tar.xz":  {ArchiveProcessor, FormatDirectory},
}

// Decide returns the routing decision for ext. It is pure and total.
//
// Precedence: skip-set (video/audio) → passthrough-set (text/code) → skill
// table → Unsupported.
func Decide(ext string) Decision {
	ext = strings.ToLower(ext)
	cat := Classify(ext)

	if IsMedia(cat) {
		return Skip{Category: cat}
	}
	if cat == CategoryText || cat == CategoryCode {
		return Passthrough{RewriteExt: passthroughRewrite[ext]}
	}
	if s, ok := skillByExt[ext]; ok {
		if s.processor == ArchiveProcessor {
			return Archive{Processor: s.processor}
		}
		return Skill{Processor: s.processor, OutputExt: s.outputExt}
	}
	return Unsupported{Ext: ext}
}

// Priority returns the default queue priority for a routed file. Lower
// values are processed first: cheap copies lead, archives trail.
func Priority(d Decision, cat Category) int {
	switch d.(type) {
	case Passthrough:
		return 10
	case Archive:
		return 60
	case Skill:
		switch cat {
		case CategoryHTML:
			return 20
		case CategoryDocument:
			return 30
		case CategoryDatabase:
			return 40
		case CategoryImage:
			return 50
		}
		return 70
	case Skip, Unsupported:
		return 100
	}
	return 100
}

// Processor returns the processor name a decision delegates to, or "" for
// variants that have none.
func Processor(d Decision) string {
	switch v := d.(type) {
	case Passthrough:
		return string(MethodPassthrough)
	case Skill:
		return v.Processor
	case Archive:
		return v.Processor
	case Skip, Unsupported:
		return ""
	}
	return ""
}
