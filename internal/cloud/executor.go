package cloud

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/http"
	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// Executor performs the control GET and the data PUT with bounded,
// fixed-delay retry of transport errors. A completed response is never
// retried, whatever its status.
type Executor struct {
	pool      *http.Pool
	policy    http.RetryPolicy
	logger    *logging.Logger
	chunkSize int
	encoding  BodyEncoding
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRetryPolicy overrides the default 5 attempts / 500ms policy.
func WithRetryPolicy(p http.RetryPolicy) ExecutorOption {
	return func(e *Executor) { e.policy = p }
}

// WithChunkSize sets the upload chunk size.
func WithChunkSize(n int) ExecutorOption {
	return func(e *Executor) { e.chunkSize = n }
}

// WithBodyEncoding selects multipart or raw PUT bodies.
func WithBodyEncoding(enc BodyEncoding) ExecutorOption {
	return func(e *Executor) { e.encoding = enc }
}

// NewExecutor creates an executor drawing clients from pool.
func NewExecutor(pool *http.Pool, logger *logging.Logger, opts ...ExecutorOption) (*Executor, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Executor{
		pool:      pool,
		policy:    http.DefaultRetryPolicy(),
		logger:    logger,
		chunkSize: constants.ChunkSize,
		encoding:  BodyMultipart,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if e.encoding != BodyMultipart && e.encoding != BodyRaw {
		return nil, fmt.Errorf("unknown body encoding %q", e.encoding)
	}
	return e, nil
}

// FetchLocation GETs url with the bearer token and reports the body once.
// Any failure (retries exhausted, non-200 status, cancellation) is reported
// as a ResponseInfo with empty Content.
func (e *Executor) FetchLocation(ctx context.Context, fileName, url, token string, sink ResponseSink) {
	content, err := e.fetch(ctx, fileName, url, token)
	if err != nil {
		content = ""
	}
	if sink != nil {
		sink.Report(ResponseInfo{FileName: fileName, Content: content})
	}
}

func (e *Executor) fetch(ctx context.Context, fileName, url, token string) (string, error) {
	client, err := e.pool.Client()
	if err != nil {
		e.logger.Error().Err(err).Str("file", fileName).Msg("No HTTP client available")
		return "", err
	}

	tracker := http.NewAttemptTracker("GET "+fileName, e.logger)
	rc := http.NewRetryClient(client, e.policy, tracker, e.logger)

	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		e.logger.Error().Err(err).Str("file", fileName).Msg("Invalid control request")
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	phase := StartPhase(e.logger, "resolve", fileName)
	resp, err := rc.Do(req)
	if err != nil {
		return "", e.giveUp(ctx, fileName, tracker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.logger.Error().Err(err).Str("file", fileName).Msg("Failed to read control response")
		return "", err
	}
	phase.End(0)

	if resp.StatusCode != nethttp.StatusOK {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		e.logger.Warn().Err(serr).Str("file", fileName).Msg("Control request rejected")
		return "", serr
	}
	return string(body), nil
}

// giveUp logs the end of a failed retry loop and returns the error that
// explains it: the cancellation cause, or the first transport error seen.
func (e *Executor) giveUp(ctx context.Context, fileName string, tracker *http.AttemptTracker, err error) error {
	if ctx.Err() != nil {
		e.logger.Debug().Str("file", fileName).Msg("Transfer cancelled")
		return ctx.Err()
	}
	cause := tracker.FirstError()
	if cause == nil {
		cause = err
	}
	e.logger.Error().
		Str("file", fileName).
		Int("attempts", tracker.Attempts()).
		Str("error_type", http.ErrorTypeName(http.ClassifyError(cause))).
		Err(cause).
		Msg("Giving up")
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, tracker.Attempts(), cause)
}

// PushData PUTs payload to url and reports progress to sink, ending with
// exactly one notification that has Done set. Multipart PUTs carry the bearer
// token; raw PUTs rely on the URL signature alone. The payload is rewound before
// every attempt. Reported byte counts never go back, even across attempts.
func (e *Executor) PushData(ctx context.Context, fileName, url string, payload io.ReadSeeker, token string, sink ProgressSink) {
	rep := newProgressReporter(fileName, sink)

	size, err := payload.Seek(0, io.SeekEnd)
	if err != nil {
		rep.finish(ProgressInfo{FileName: fileName, BytesSent: 0, TotalBytes: 1, Error: err.Error()})
		return
	}

	env, err := newEnvelope(e.encoding, fileName)
	if err != nil {
		rep.finish(ProgressInfo{FileName: fileName, BytesSent: 0, TotalBytes: 1, Error: err.Error()})
		return
	}

	var (
		mu     sync.Mutex
		stream *ProgressStream
	)
	bodyFn := func() (io.Reader, error) {
		if _, err := payload.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		s, err := NewProgressStream(&sizedReader{Reader: payload, size: size}, e.chunkSize, rep.progress)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		stream = s
		mu.Unlock()
		return env.wrap(s), nil
	}

	client, err := e.pool.Client()
	if err != nil {
		rep.finish(ProgressInfo{FileName: fileName, BytesSent: 0, TotalBytes: 1, Error: err.Error()})
		return
	}

	tracker := http.NewAttemptTracker("PUT "+fileName, e.logger)
	rc := http.NewRetryClient(client, e.policy, tracker, e.logger)

	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodPut, url, retryablehttp.ReaderFunc(bodyFn))
	if err != nil {
		rep.finish(ProgressInfo{FileName: fileName, BytesSent: 0, TotalBytes: 1, Error: err.Error()})
		return
	}
	req.ContentLength = env.length(size)
	req.Header.Set("Content-Type", env.contentType)
	if e.encoding == BodyRaw {
		// The signature in the URL is the only credential object stores
		// accept. Azure Blob also requires the blob type.
		req.Header.Set("x-ms-blob-type", "BlockBlob")
	} else {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	phase := StartPhase(e.logger, "put", fileName)
	resp, err := rc.Do(req)
	if err != nil {
		msg := e.giveUp(ctx, fileName, tracker, err).Error()
		if first := tracker.FirstError(); first != nil && ctx.Err() == nil {
			msg = first.Error()
		}
		rep.finish(ProgressInfo{FileName: fileName, BytesSent: 0, TotalBytes: 1, Error: msg})
		return
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	mu.Lock()
	last := stream
	mu.Unlock()
	var sent, total int64
	if last != nil {
		sent, total = last.Sent(), last.Total()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if msg == "" {
			msg = resp.Status
		}
		e.logger.Error().Str("file", fileName).Int("status", resp.StatusCode).Msg("Upload rejected")
		rep.finish(ProgressInfo{FileName: fileName, BytesSent: sent, TotalBytes: total, Error: msg})
		return
	}

	if sent != total {
		e.logger.Warn().Str("file", fileName).Int64("sent", sent).Int64("total", total).Msg("Upload incomplete")
		rep.finish(ProgressInfo{
			FileName:   fileName,
			BytesSent:  sent,
			TotalBytes: total,
			Error:      fmt.Sprintf("Uploaded %s incompletely.", fileName),
		})
		return
	}

	phase.End(sent)
	e.logger.Debug().Str("file", fileName).Int64("bytes", sent).Msg("Upload complete")
	rep.finish(ProgressInfo{FileName: fileName, BytesSent: sent, TotalBytes: total, Success: true})
}

// progressReporter serializes notifications to one sink. It drops counts
// below the high-water mark and anything after the terminal notification;
// the transport may still be draining the body when the response arrives.
type progressReporter struct {
	mu       sync.Mutex
	fileName string
	sink     ProgressSink
	high     int64
	done     bool
}

func newProgressReporter(fileName string, sink ProgressSink) *progressReporter {
	return &progressReporter{fileName: fileName, sink: sink}
}

func (r *progressReporter) progress(sent, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || sent <= r.high {
		return
	}
	r.high = sent
	if r.sink != nil {
		r.sink.Report(ProgressInfo{FileName: r.fileName, BytesSent: sent, TotalBytes: total})
	}
}

func (r *progressReporter) finish(info ProgressInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	info.Done = true
	if r.sink != nil {
		r.sink.Report(info)
	}
}
