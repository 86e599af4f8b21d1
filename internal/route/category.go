package route

import (
	"path/filepath"
	"strings"
)

// Category is the coarse file type assigned during scanning. Every file gets
// exactly one; unknown extensions map to CategoryUnknown.
type Category string

const (
	CategoryText     Category = "text"
	CategoryCode     Category = "code"
	CategoryDocument Category = "document"
	CategoryDatabase Category = "database"
	CategoryArchive  Category = "archive"
	CategoryImage    Category = "image"
	CategoryHTML     Category = "html"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryUnknown  Category = "unknown"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryText, CategoryCode, CategoryDocument, CategoryDatabase,
	CategoryArchive, CategoryImage, CategoryHTML, CategoryVideo,
	CategoryAudio, CategoryUnknown,
}

// compoundExtensions are checked before the single trailing suffix.
var compoundExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz"}

// categoryByExt maps lowercase extensions (with leading dot) to categories.
var categoryByExt = map[string]Category{
	// text
	".txt": CategoryText, ".md": CategoryText, ".markdown": CategoryText,
	".rst": CategoryText, ".csv": CategoryText, ".tsv": CategoryText,
	".json": CategoryText, ".yaml": CategoryText, ".yml": CategoryText,
	".xml": CategoryText, ".srt": CategoryText, ".vtt": CategoryText,
	".log": CategoryText, ".tex": CategoryText, ".text": CategoryText,

	// code
	".py": CategoryCode, ".js": CategoryCode, ".ts": CategoryCode,
	".jsx": CategoryCode, ".tsx": CategoryCode, ".go": CategoryCode,
	".java": CategoryCode, ".c": CategoryCode, ".cpp": CategoryCode,
	".cc": CategoryCode, ".h": CategoryCode, ".hpp": CategoryCode,
	".cs": CategoryCode, ".rb": CategoryCode, ".php": CategoryCode,
	".rs": CategoryCode, ".swift": CategoryCode, ".kt": CategoryCode,
	".sh": CategoryCode, ".sql": CategoryCode, ".css": CategoryCode,
	".scss": CategoryCode, ".ipynb": CategoryCode, ".r": CategoryCode,

	// document
	".pdf": CategoryDocument, ".docx": CategoryDocument, ".doc": CategoryDocument,
	".pptx": CategoryDocument, ".ppt": CategoryDocument, ".xlsx": CategoryDocument,
	".xls": CategoryDocument, ".odt": CategoryDocument, ".epub": CategoryDocument,
	".rtf": CategoryDocument,

	// database
	".db": CategoryDatabase, ".sqlite": CategoryDatabase, ".sqlite3": CategoryDatabase,
	".mdb": CategoryDatabase, ".accdb": CategoryDatabase,

	// archive
	".zip": CategoryArchive, ".tar": CategoryArchive, ".tgz": CategoryArchive,
	".gz": CategoryArchive, ".tar.gz": CategoryArchive, ".tar.bz2": CategoryArchive,
	".tar.xz": CategoryArchive, ".rar": CategoryArchive, ".7z": CategoryArchive,

	// image
	".png": CategoryImage, ".jpg": CategoryImage, ".jpeg": CategoryImage,
	".gif": CategoryImage, ".bmp": CategoryImage, ".svg": CategoryImage,
	".webp": CategoryImage, ".tif": CategoryImage, ".tiff": CategoryImage,

	// html
	".html": CategoryHTML, ".htm": CategoryHTML, ".xhtml": CategoryHTML,

	// video
	".mp4": CategoryVideo, ".mkv": CategoryVideo, ".avi": CategoryVideo,
	".mov": CategoryVideo, ".wmv": CategoryVideo, ".flv": CategoryVideo,
	".webm": CategoryVideo, ".m4v": CategoryVideo, ".mpg": CategoryVideo,
	".mpeg": CategoryVideo, ".m2ts": CategoryVideo, ".ogv": CategoryVideo,

	// audio
	".mp3": CategoryAudio, ".wav": CategoryAudio, ".aac": CategoryAudio,
	".flac": CategoryAudio, ".ogg": CategoryAudio, ".m4a": CategoryAudio,
	".wma": CategoryAudio, ".opus": CategoryAudio,
}

// Ext returns the normalized extension of a file name: lowercase, with the
// leading dot, compound suffixes such as ".tar.gz" resolved first. Names
// without a suffix return "".
func Ext(name string) string {
	lower := strings.ToLower(name)
	for _, c := range compoundExtensions {
		if strings.HasSuffix(lower, c) && len(lower) > len(c) {
			return c
		}
	}
	return strings.ToLower(filepath.Ext(name))
}

// Classify returns the category for ext. It is total: anything not in the
// table is CategoryUnknown.
func Classify(ext string) Category {
	if c, ok := categoryByExt[strings.ToLower(ext)]; ok {
		return c
	}
	return CategoryUnknown
}

// IsMedia reports whether c is dropped at the source (video or audio).
func IsMedia(c Category) bool {
	return c == CategoryVideo || c == CategoryAudio
}
