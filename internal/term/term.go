// Package term holds the ANSI colour state shared by the logger and the
// report writers, plus terminal detection.
//
// Colours are package-level strings. [Configure] sets them once during
// startup; with colour off they are empty and concatenation is a no-op.
package term

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/backmassage/courseforge/internal/config"
)

// ANSI sequences. Empty when colours are disabled.
var (
	Red     = ""
	Green   = ""
	Yellow  = ""
	Orange  = ""
	Blue    = ""
	Cyan    = ""
	Magenta = ""
	Bold    = ""
	Dim     = ""
	NC      = "" // Reset.
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 100

// Configure resolves mode against the environment, sets the package-level
// sequences, and reports whether colour is on. Called from
// logging.NewLogger.
func Configure(mode config.ColorMode) bool {
	on := resolve(mode)
	if on {
		Red = "\033[1;91m"
		Green = "\033[1;92m"
		Yellow = "\033[1;93m"
		Orange = "\033[1;38;5;208m"
		Blue = "\033[1;94m"
		Cyan = "\033[1;96m"
		Magenta = "\033[1;95m"
		Bold = "\033[1m"
		Dim = "\033[2m"
		NC = "\033[0m"
	} else {
		Red, Green, Yellow, Orange, Blue, Cyan, Magenta, Bold, Dim, NC = "", "", "", "", "", "", "", "", "", ""
	}
	return on
}

// Enabled reports whether colours are currently active.
func Enabled() bool { return NC != "" }

// Paint wraps s in color when colours are on.
func Paint(color, s string) string {
	if color == "" || !Enabled() {
		return s
	}
	return color + s + NC
}

// Pad left-aligns plain text to width and then paints it, so escape bytes
// never count toward the column width.
func Pad(color, s string, width int) string {
	return Paint(color, fmt.Sprintf("%-*s", width, s))
}

// Width returns $COLUMNS when it is a positive integer, else DefaultWidth.
func Width() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return DefaultWidth
}

// resolve applies the configured mode. Auto honours NO_COLOR
// (https://no-color.org), CLICOLOR_FORCE and TERM=dumb before falling back
// to TTY detection on stdout.
func resolve(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	if strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return false
	}
	return IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
