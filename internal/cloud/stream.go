package cloud

import (
	"io"
	"sync/atomic"

	"github.com/cloudsdk/cloudxfer/internal/constants"
)

// ProgressStream wraps an upload payload and reports the cumulative byte
// count handed to the transport, one report per chunk.
type ProgressStream struct {
	r         io.Reader
	chunkSize int
	total     int64
	sent      atomic.Int64
	fn        func(sent, total int64)

	// Read stages one chunk in buf and hands it out across the transport's
	// smaller reads; buf[off:] is still pending.
	buf  []byte
	off  int
	rerr error
}

// NewProgressStream wraps r. The total is taken once from r's declared
// length (Size() or Len()) and is 0 when r declares none. A zero chunkSize
// selects the 1 MiB default; a negative one is rejected.
func NewProgressStream(r io.Reader, chunkSize int, fn func(sent, total int64)) (*ProgressStream, error) {
	if chunkSize == 0 {
		chunkSize = constants.ChunkSize
	}
	if chunkSize < 0 {
		return nil, ErrInvalidChunkSize
	}
	if fn == nil {
		fn = func(int64, int64) {}
	}
	return &ProgressStream{
		r:         r,
		chunkSize: chunkSize,
		total:     declaredLength(r),
		fn:        fn,
	}, nil
}

func declaredLength(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Size() int64 }:
		return v.Size()
	case interface{ Len() int }:
		return int64(v.Len())
	}
	return 0
}

// Read fills one chunk from the payload and hands it out across as many
// calls as the caller's buffer needs. The report for a chunk fires when its
// last byte is handed over, so the transport's buffer size does not change
// the report granularity.
func (s *ProgressStream) Read(p []byte) (int, error) {
	if s.off == len(s.buf) {
		if s.rerr != nil {
			return 0, s.rerr
		}
		if err := s.fill(); err != nil && len(s.buf) == 0 {
			return 0, err
		}
	}
	n := copy(p, s.buf[s.off:])
	s.off += n
	sent := s.sent.Add(int64(n))
	if s.off == len(s.buf) && n > 0 {
		s.fn(sent, s.total)
	}
	return n, nil
}

// fill reads the next chunk into buf. A short final chunk is not an error;
// EOF is kept for the read after it has been handed out.
func (s *ProgressStream) fill() error {
	if s.buf == nil {
		s.buf = make([]byte, s.chunkSize)
	}
	n, err := io.ReadFull(s.r, s.buf[:cap(s.buf)])
	s.buf, s.off = s.buf[:n], 0
	switch err {
	case nil:
	case io.ErrUnexpectedEOF, io.EOF:
		s.rerr = io.EOF
	default:
		s.rerr = err
	}
	return s.rerr
}

// WriteTo forwards the payload chunk by chunk. Each chunk is written and,
// when w can flush, flushed before its report.
func (s *ProgressStream) WriteTo(w io.Writer) (int64, error) {
	var written int64
	if rest := s.buf[s.off:]; len(rest) > 0 {
		m, err := w.Write(rest)
		written += int64(m)
		s.off += m
		if err == nil && m != len(rest) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return written, err
		}
		if err := flush(w); err != nil {
			return written, err
		}
		s.fn(s.sent.Add(int64(m)), s.total)
	}
	if s.rerr == io.EOF {
		return written, nil
	}
	if s.rerr != nil {
		return written, s.rerr
	}
	buf := make([]byte, s.chunkSize)
	for {
		n, rerr := s.r.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m != n {
				return written, io.ErrShortWrite
			}
			if err := flush(w); err != nil {
				return written, err
			}
			s.fn(s.sent.Add(int64(m)), s.total)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}

// Sent returns the bytes handed over so far.
func (s *ProgressStream) Sent() int64 {
	return s.sent.Load()
}

// Total returns the declared length, 0 when unknown.
func (s *ProgressStream) Total() int64 {
	return s.total
}
