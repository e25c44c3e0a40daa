package cloud

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadFileSource loads a file into memory so every attempt can re-read it.
func ReadFileSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// ReadStreamSource drains r into memory, stopping one byte past limit so an
// oversized stream is detected without buffering all of it. A non-positive
// limit reads everything.
func ReadStreamSource(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return buf.Bytes(), nil
}

// NewPayloadReader returns a seekable reader over data.
func NewPayloadReader(data []byte) io.ReadSeeker {
	return bytes.NewReader(data)
}
