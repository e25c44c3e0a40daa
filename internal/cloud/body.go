package cloud

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// BodyEncoding selects how the payload is framed on the data PUT.
type BodyEncoding string

const (
	// BodyMultipart sends multipart/form-data with one "file" part.
	BodyMultipart BodyEncoding = "multipart"
	// BodyRaw sends the bare payload, as object-store pre-signed URLs expect.
	BodyRaw BodyEncoding = "raw"
)

// ParseBodyEncoding maps a config value to a BodyEncoding.
func ParseBodyEncoding(s string) (BodyEncoding, error) {
	switch BodyEncoding(s) {
	case "", BodyMultipart:
		return BodyMultipart, nil
	case BodyRaw:
		return BodyRaw, nil
	}
	return "", fmt.Errorf("unknown body encoding %q", s)
}

// envelope is the framing around the payload. It is built once per upload so
// every attempt sends identical bytes (same multipart boundary).
type envelope struct {
	contentType string
	prefix      []byte
	suffix      []byte
}

func newEnvelope(enc BodyEncoding, fileName string) (*envelope, error) {
	if enc == BodyRaw {
		return &envelope{contentType: "application/octet-stream"}, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, err := mw.CreateFormFile("file", fileName); err != nil {
		return nil, fmt.Errorf("failed to build multipart header: %w", err)
	}
	prefix := append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart trailer: %w", err)
	}
	suffix := append([]byte(nil), buf.Bytes()...)

	return &envelope{
		contentType: mw.FormDataContentType(),
		prefix:      prefix,
		suffix:      suffix,
	}, nil
}

// length returns the framed body length for a payload of size bytes.
func (e *envelope) length(size int64) int64 {
	return int64(len(e.prefix)) + size + int64(len(e.suffix))
}

// wrap frames payload.
func (e *envelope) wrap(payload io.Reader) io.Reader {
	if len(e.prefix) == 0 && len(e.suffix) == 0 {
		return payload
	}
	return io.MultiReader(bytes.NewReader(e.prefix), payload, bytes.NewReader(e.suffix))
}

// sizedReader declares a length for a reader that cannot.
type sizedReader struct {
	io.Reader
	size int64
}

func (r *sizedReader) Size() int64 { return r.size }
