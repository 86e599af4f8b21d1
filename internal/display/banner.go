package display

import (
	"fmt"
	"io"

	"github.com/backmassage/courseforge/internal/config"
	"github.com/backmassage/courseforge/internal/term"
)

// PrintBanner writes the ASCII art banner and version, in magenta when
// colors are enabled.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, term.Magenta)
	fmt.Fprint(w, `  ___                      ___
 / __|___ _  _ _ _ ___ ___| __|__ _ _ __ _ ___
| (__/ _ \ || | '_(_-</ -_) _/ _ \ '_/ _`+"`"+` / -_)
 \___\___/\_,_|_| /__/\___|_|\___/_| \__, \___|
                                     |___/
`)
	fmt.Fprint(w, term.NC)
	fmt.Fprintf(w, "courseforge v%s\n\n", config.Version)
}
