//go:build !windows

package progress

import (
	"os"

	"golang.org/x/term"
)

// attachTerminal reports whether bars can be drawn on f.
func attachTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
