package progress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/cloudsdk/cloudxfer/internal/cloud"
	"github.com/cloudsdk/cloudxfer/internal/constants"
)

// UploadUI draws one bar per concurrent upload. Without a terminal it
// prints one line when an upload starts and one when it ends.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int

	started   atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
}

// NewUploadUI creates the UI on stderr.
func NewUploadUI(totalFiles int) *UploadUI {
	return newUploadUI(totalFiles, os.Stderr, attachTerminal(os.Stderr))
}

// NewTextUploadUI creates a line-oriented UI writing to w.
func NewTextUploadUI(totalFiles int, w io.Writer) *UploadUI {
	return newUploadUI(totalFiles, w, false)
}

func newUploadUI(totalFiles int, w io.Writer, isTerminal bool) *UploadUI {
	out := io.Discard
	if isTerminal {
		out = w
	}
	return &UploadUI{
		progress: mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressUpdateInterval),
			mpb.WithWidth(100),
		),
		out:        &lockedWriter{w: w},
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// lockedWriter serializes the lines of concurrent uploads in text mode.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// FileBar tracks one upload. It is a cloud.ProgressSink.
type FileBar struct {
	ui     *UploadUI
	bar    *mpb.Bar // nil without a terminal
	label  string
	folder string
	size   int64
	start  time.Time

	mu       sync.Mutex
	lastTick time.Time
	lastSent int64
	done     bool
}

// AddFileBar registers an upload of size bytes from localPath to folder.
func (u *UploadUI) AddFileBar(localPath, folder string, size int64) *FileBar {
	index := int(u.started.Add(1))
	now := time.Now()
	f := &FileBar{
		ui:       u,
		label:    truncatePath(localPath, 2),
		folder:   folder,
		size:     size,
		start:    now,
		lastTick: now,
	}
	header := fmt.Sprintf("[%d/%d] %s (%s) → %s", index, u.totalFiles, f.label, cloud.FormatBytes(size), folder)

	if !u.isTerminal {
		fmt.Fprintf(u.out, "Uploading %s\n", strings.Replace(header, "] ", "]: ", 1))
		return f
	}

	f.bar = u.progress.New(size,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(decor.Name(header, decor.WCSyncSpaceR)),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Percentage(decor.WCSyncSpace),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace), ""),
		),
		mpb.BarRemoveOnComplete(),
	)
	return f
}

// Report implements cloud.ProgressSink.
func (f *FileBar) Report(p cloud.ProgressInfo) {
	if !p.Done {
		f.advance(p.BytesSent)
		return
	}
	var err error
	if !p.Success {
		err = errors.New(p.Error)
	}
	f.Complete(err)
}

// advance moves the bar to sent, at most once per refresh interval. The
// elapsed time feeds the EWMA speed and ETA decorators.
func (f *FileBar) advance(sent int64) {
	if f.bar == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	since := now.Sub(f.lastTick)
	if f.done || since < constants.ProgressUpdateInterval || sent <= f.lastSent {
		return
	}
	f.bar.EwmaIncrBy(int(sent-f.lastSent), since)
	f.lastSent, f.lastTick = sent, now
}

// Complete ends the upload and prints its outcome. Only the first call counts.
func (f *FileBar) Complete(err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.mu.Unlock()

	elapsed := time.Since(f.start)
	var line string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		line = fmt.Sprintf("✓ %s → %s (%s, %s, %s)\n", f.label, f.folder,
			cloud.FormatBytes(f.size), elapsed.Round(time.Millisecond), cloud.FormatRate(f.size, elapsed))
		f.ui.completed.Add(1)
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		line = fmt.Sprintf("✗ %s → %s: %v\n", f.label, f.folder, err)
		f.ui.failed.Add(1)
	}
	_, _ = io.WriteString(f.ui.Writer(), line)
}

// Wait blocks until every bar has completed or aborted.
func (u *UploadUI) Wait() {
	u.progress.Wait()
}

// Writer prints above the bars on a terminal, or to the plain output.
func (u *UploadUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Counts returns how many uploads succeeded and failed so far.
func (u *UploadUI) Counts() (completed, failed int) {
	return int(u.completed.Load()), int(u.failed.Load())
}

// truncatePath keeps the last n components of path, e.g.
// truncatePath("/a/b/c/d/file.txt", 3) == "…/c/d/file.txt".
func truncatePath(path string, n int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= n {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-n:], "/")
}
