package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errNoTerminal is returned when a secret is needed but stdin is not a terminal.
var errNoTerminal = errors.New("stdin is not a terminal")

// promptSecret reads a line from the terminal without echo.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// promptToken asks for the bearer token when no other source provided one.
func promptToken() (string, error) {
	t, err := promptSecret("Bearer token: ")
	if errors.Is(err, errNoTerminal) {
		return "", errors.New("no token: pass --token, --token-file or set CLOUDXFER_TOKEN")
	}
	if err != nil {
		return "", err
	}
	if t == "" {
		return "", errors.New("token is required")
	}
	return t, nil
}

// DownloadConflictAction represents user choice for download file conflicts
type DownloadConflictAction int

const (
	DownloadSkipOnce DownloadConflictAction = iota
	DownloadSkipAll
	DownloadOverwriteOnce
	DownloadOverwriteAll
	DownloadAbort
)

// promptDownloadConflict asks user what to do when a downloaded file
// already exists locally. Invalid input asks again.
func promptDownloadConflict(in *bufio.Reader, out io.Writer, fileName, localPath string) (DownloadConflictAction, error) {
	for {
		fmt.Fprintf(out, "\nFile '%s' already exists at '%s'.\n", fileName, localPath)
		fmt.Fprintln(out, "What would you like to do?")
		fmt.Fprintln(out, "  1. Skip (once) - Skip this file only")
		fmt.Fprintln(out, "  2. Skip (do for all) - Skip all existing files")
		fmt.Fprintln(out, "  3. Overwrite (once) - Replace this file, prompt for next")
		fmt.Fprintln(out, "  4. Overwrite (do for all) - Replace all existing files")
		fmt.Fprintln(out, "  5. Abort - Stop download")
		fmt.Fprint(out, "Choose [1-5]: ")

		input, err := in.ReadString('\n')
		if err != nil && input == "" {
			return DownloadAbort, err
		}

		switch strings.TrimSpace(input) {
		case "1":
			return DownloadSkipOnce, nil
		case "2":
			return DownloadSkipAll, nil
		case "3":
			return DownloadOverwriteOnce, nil
		case "4":
			return DownloadOverwriteAll, nil
		case "5":
			return DownloadAbort, nil
		}
		if err != nil {
			return DownloadAbort, err
		}
		fmt.Fprintln(out, "Invalid choice, please try again.")
	}
}
