// Package diskspace checks that downloads fit on the filesystem they are
// written to, accounting for downloads to the same directory that are still
// in flight.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// InsufficientSpaceError reports a download that does not fit.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	const mib = 1024 * 1024
	return fmt.Sprintf("not enough space for %s: need %.2f MiB, %.2f MiB free",
		e.Path, float64(e.RequiredBytes)/mib, float64(e.AvailableBytes)/mib)
}

// IsInsufficientSpaceError reports whether err is or wraps an
// InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var se *InsufficientSpaceError
	return errors.As(err, &se)
}

// Guard hands out space reservations per directory. Free space reported by
// the filesystem does not yet include files that are being written, so each
// reservation is subtracted until it is released.
type Guard struct {
	margin float64
	free   func(dir string) (int64, error)

	mu       sync.Mutex
	reserved map[string]int64
}

// NewGuard creates a guard that requires size*margin free bytes per download.
func NewGuard(margin float64) *Guard {
	if margin < 1 {
		margin = 1
	}
	return &Guard{
		margin:   margin,
		free:     freeBytes,
		reserved: make(map[string]int64),
	}
}

// Reserve claims room for size bytes written to target. The returned release
// func must be called once the file is on disk or abandoned. When free space
// cannot be determined the reservation succeeds and the write fails on its
// own if it must.
func (g *Guard) Reserve(target string, size int64) (release func(), err error) {
	dir := filepath.Dir(target)
	avail, err := g.free(dir)
	if err != nil {
		return func() {}, nil
	}
	need := int64(float64(size) * g.margin)

	g.mu.Lock()
	defer g.mu.Unlock()

	left := avail - g.reserved[dir]
	if left < need {
		return nil, &InsufficientSpaceError{Path: target, RequiredBytes: need, AvailableBytes: max(left, 0)}
	}
	g.reserved[dir] += need

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.reserved[dir] -= need; g.reserved[dir] <= 0 {
				delete(g.reserved, dir)
			}
		})
	}, nil
}

// Reserved returns the bytes currently claimed in dir.
func (g *Guard) Reserved(dir string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reserved[filepath.Clean(dir)]
}
