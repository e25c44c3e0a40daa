//go:build windows

package progress

import (
	"os"

	"golang.org/x/sys/windows"
	"golang.org/x/term"
)

// attachTerminal reports whether bars can be drawn on f, switching the
// console to virtual terminal mode so mpb's cursor movement is interpreted.
func attachTerminal(f *os.File) bool {
	if !term.IsTerminal(int(f.Fd())) {
		return false
	}
	h := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return false
	}
	return windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING) == nil
}
