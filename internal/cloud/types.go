package cloud

import (
	"fmt"

	"github.com/cloudsdk/cloudxfer/internal/constants"
)

// Operation is the transfer direction, as it appears in the control path.
type Operation string

const (
	OperationDownload Operation = "download"
	OperationUpload   Operation = "upload"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	return op == OperationDownload || op == OperationUpload
}

// Request is one upload or download intent.
type Request struct {
	Operation Operation
	Folder    string
	Category  int
	FileName  string
	Token     string
	Payload   []byte // upload only
}

// Validate checks the request before any network call. Uploads must carry a
// non-empty payload no larger than sizeLimit, unless Category is bulkCategory.
func (r Request) Validate(sizeLimit int64, bulkCategory int) error {
	if !r.Operation.Valid() {
		return newValidationError("operation", ErrInvalidOperation, string(r.Operation))
	}
	if r.Token == "" {
		return newValidationError("token", ErrEmptyToken, "")
	}
	if r.Folder == "" {
		return newValidationError("folder", ErrEmptyFolder, "")
	}
	if r.FileName == "" {
		return newValidationError("file_name", ErrEmptyFileName, "")
	}
	if r.Operation != OperationUpload {
		return nil
	}

	size := int64(len(r.Payload))
	if size == 0 {
		return newValidationError("payload", ErrEmptyPayload, fmt.Sprintf("size of %s is zero", r.FileName))
	}
	if sizeLimit <= 0 {
		sizeLimit = constants.SizeLimit
	}
	if r.Category != bulkCategory && size > sizeLimit {
		return newValidationError("payload", ErrPayloadTooLarge,
			fmt.Sprintf("size of %s is %d bytes, limit is %d", r.FileName, size, sizeLimit))
	}
	return nil
}

// ResponseInfo is the outcome of a resolution request. An empty Content
// means resolution failed.
type ResponseInfo struct {
	FileName string
	Content  string
}

// Failed reports whether resolution produced nothing.
func (r ResponseInfo) Failed() bool {
	return r.Content == ""
}

// ProgressInfo is one progress notification of an upload.
type ProgressInfo struct {
	FileName   string
	BytesSent  int64
	TotalBytes int64
	Error      string // empty when there is no error
	Success    bool
	Done       bool // set on the terminal notification only
}

// Fraction returns sent/total, or 0 when the total is unknown.
func (p ProgressInfo) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesSent) / float64(p.TotalBytes)
}

// IsFinished reports whether every declared byte was sent.
// An unknown total never counts as finished.
func (p ProgressInfo) IsFinished() bool {
	return p.TotalBytes > 0 && p.BytesSent == p.TotalBytes
}

// ProgressSink receives upload progress. The last call for a transfer has
// Done set; no call follows it.
type ProgressSink interface {
	Report(ProgressInfo)
}

// ResponseSink receives the single outcome of a resolution or download.
type ResponseSink interface {
	Report(ResponseInfo)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ProgressInfo)

func (f ProgressFunc) Report(p ProgressInfo) { f(p) }

// ResponseFunc adapts a function to ResponseSink.
type ResponseFunc func(ResponseInfo)

func (f ResponseFunc) Report(r ResponseInfo) { f(r) }
