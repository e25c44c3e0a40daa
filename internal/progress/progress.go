// Package progress renders transfer progress on the terminal: mpb bars for
// concurrent uploads, a progressbar bar for each download written to disk.
package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// Tracker follows the bytes of one download as they are written locally.
// Writes only count bytes; Done reports the outcome once.
type Tracker interface {
	io.Writer
	Done(err error)
}

// DownloadBar draws a byte counting bar for one file.
type DownloadBar struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewDownloadBar starts a bar for name on w. A negative size renders a
// spinner.
func NewDownloadBar(w io.Writer, name string, size int64) *DownloadBar {
	return &DownloadBar{
		out: w,
		bar: progressbar.NewOptions64(size,
			progressbar.OptionSetDescription(name),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		),
	}
}

func (d *DownloadBar) Write(p []byte) (int, error) {
	return d.bar.Write(p)
}

// Done completes the bar, or leaves it and prints err.
func (d *DownloadBar) Done(err error) {
	if err != nil {
		fmt.Fprintf(d.out, "\nError: %v\n", err)
		return
	}
	_ = d.bar.Finish()
}

// Discard returns a Tracker that shows nothing, for concurrent downloads
// and non-interactive output.
func Discard() Tracker {
	return discard{}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Done(error)                  {}
