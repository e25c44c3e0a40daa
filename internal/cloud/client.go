// Package cloud moves named files to and from an object store reached
// through short-lived pre-signed URLs. A transfer first resolves its URL from
// the control endpoint, then moves the data, reporting progress and one
// terminal notification to the caller's sink.
package cloud

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/logging"
	"github.com/cloudsdk/cloudxfer/internal/transfer"
)

// Client orchestrates transfers. Entry points validate synchronously, then
// run the transfer on its own goroutine and return immediately.
type Client struct {
	domain       string
	executor     *Executor
	logger       *logging.Logger
	sizeLimit    int64
	bulkCategory int
	queue        *transfer.Queue

	wg sync.WaitGroup
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSizeLimit overrides the 30 MiB upload ceiling.
func WithSizeLimit(n int64) ClientOption {
	return func(c *Client) { c.sizeLimit = n }
}

// WithBulkCategory sets the category that bypasses the size ceiling.
func WithBulkCategory(category int) ClientOption {
	return func(c *Client) { c.bulkCategory = category }
}

// WithQueue tracks every transfer in q.
func WithQueue(q *transfer.Queue) ClientOption {
	return func(c *Client) { c.queue = q }
}

// NewClient creates a client resolving URLs against domain.
func NewClient(domain string, executor *Executor, logger *logging.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Client{
		domain:       domain,
		executor:     executor,
		logger:       logger,
		sizeLimit:    constants.SizeLimit,
		bulkCategory: constants.CategoryMobileResources,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transfer is the handle of one running transfer.
type Transfer struct {
	ID        string
	FileName  string
	Operation Operation

	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the transfer. Pending retries are abandoned and the sink
// receives a terminal failure.
func (t *Transfer) Cancel() {
	t.cancel()
}

// Done is closed after the terminal notification was delivered.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transfer is over.
func (t *Transfer) Wait() {
	<-t.done
}

// Wait blocks until every transfer started by c is over.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Download resolves fileName and delivers its content to sink once.
// A resolution failure is delivered as empty content.
func (c *Client) Download(ctx context.Context, folder, fileName string, category int, token string, sink ResponseSink) (*Transfer, error) {
	req := Request{
		Operation: OperationDownload,
		Folder:    folder,
		Category:  category,
		FileName:  fileName,
		Token:     token,
	}
	if err := req.Validate(c.sizeLimit, c.bulkCategory); err != nil {
		return nil, err
	}
	locationURL, err := BuildLocationURL(c.domain, OperationDownload, folder, category, fileName)
	if err != nil {
		return nil, err
	}

	t, tctx := c.start(ctx, req)
	go func() {
		defer c.end(t)

		c.executor.FetchLocation(tctx, fileName, locationURL, token, ResponseFunc(func(r ResponseInfo) {
			if r.Failed() {
				c.logger.Warn().Str("file", fileName).Msg("Download failed")
				c.failTask(t.ID, tctx, ErrResolveFailed)
			} else {
				c.completeTask(t.ID, int64(len(r.Content)))
			}
			if sink != nil {
				sink.Report(r)
			}
		}))
	}()
	return t, nil
}

// Upload resolves an upload URL for fileName and PUTs payload to it.
func (c *Client) Upload(ctx context.Context, folder, fileName string, category int, payload []byte, token string, sink ProgressSink) (*Transfer, error) {
	req := Request{
		Operation: OperationUpload,
		Folder:    folder,
		Category:  category,
		FileName:  fileName,
		Token:     token,
		Payload:   payload,
	}
	if err := req.Validate(c.sizeLimit, c.bulkCategory); err != nil {
		return nil, err
	}
	locationURL, err := BuildLocationURL(c.domain, OperationUpload, folder, category, fileName)
	if err != nil {
		return nil, err
	}

	t, tctx := c.start(ctx, req)
	go func() {
		defer c.end(t)

		var resolved ResponseInfo
		c.executor.FetchLocation(tctx, fileName, locationURL, token, ResponseFunc(func(r ResponseInfo) {
			resolved = r
		}))

		uploadURL := strings.TrimSpace(resolved.Content)
		if uploadURL == "" {
			c.rejectUpload(t, tctx, sink, ErrResolveFailed)
			return
		}
		if !locationMatches(resolved.FileName, uploadURL, fileName) {
			c.logger.Warn().Str("file", fileName).Str("url", redact(uploadURL)).Msg("Resolved URL does not match file")
			c.rejectUpload(t, tctx, sink, ErrFileNameMismatch)
			return
		}

		c.executor.PushData(tctx, fileName, uploadURL, NewPayloadReader(payload), token, c.trackProgress(t.ID, sink))
	}()
	return t, nil
}

// DownloadTemp downloads from the cache folder.
func (c *Client) DownloadTemp(ctx context.Context, fileName, token string, sink ResponseSink) (*Transfer, error) {
	return c.Download(ctx, constants.FolderCache, fileName, constants.CategoryCache, token, sink)
}

// UploadTemp uploads to the cache folder.
func (c *Client) UploadTemp(ctx context.Context, fileName string, payload []byte, token string, sink ProgressSink) (*Transfer, error) {
	return c.Upload(ctx, constants.FolderCache, fileName, constants.CategoryCache, payload, token, sink)
}

// UploadFile uploads the file at path under its base name.
func (c *Client) UploadFile(ctx context.Context, folder, path string, category int, token string, sink ProgressSink) (*Transfer, error) {
	payload, err := ReadFileSource(path)
	if err != nil {
		return nil, err
	}
	return c.Upload(ctx, folder, filepath.Base(path), category, payload, token, sink)
}

// UploadReader drains r and uploads it as fileName. Outside the bulk
// category, reading stops just past the size ceiling.
func (c *Client) UploadReader(ctx context.Context, folder, fileName string, category int, r io.Reader, token string, sink ProgressSink) (*Transfer, error) {
	limit := c.sizeLimit
	if category == c.bulkCategory {
		limit = 0
	}
	payload, err := ReadStreamSource(r, limit)
	if err != nil {
		return nil, err
	}
	return c.Upload(ctx, folder, fileName, category, payload, token, sink)
}

// start registers the transfer and derives its cancellable context.
func (c *Client) start(ctx context.Context, req Request) (*Transfer, context.Context) {
	tctx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		FileName:  req.FileName,
		Operation: req.Operation,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if c.queue != nil {
		taskType := transfer.TaskTypeDownload
		if req.Operation == OperationUpload {
			taskType = transfer.TaskTypeUpload
		}
		task := c.queue.TrackTransfer(taskType, req.FileName, req.Folder, req.Category, int64(len(req.Payload)))
		t.ID = task.ID
		c.queue.SetCancel(task.ID, cancel)
		c.queue.Activate(task.ID)
	} else {
		t.ID = uuid.NewString()
	}

	c.logger.Debug().
		Str("id", t.ID).
		Str("operation", string(req.Operation)).
		Str("folder", req.Folder).
		Int("category", req.Category).
		Str("file", req.FileName).
		Msg("Transfer started")

	c.wg.Add(1)
	return t, tctx
}

func (c *Client) end(t *Transfer) {
	t.cancel()
	close(t.done)
	c.wg.Done()
}

// rejectUpload delivers the terminal failure of an upload that never
// reached the data PUT.
func (c *Client) rejectUpload(t *Transfer, ctx context.Context, sink ProgressSink, cause error) {
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	c.failTask(t.ID, ctx, cause)
	if sink != nil {
		sink.Report(ProgressInfo{
			FileName:   t.FileName,
			BytesSent:  0,
			TotalBytes: 1,
			Error:      cause.Error(),
			Done:       true,
		})
	}
}

// trackProgress mirrors upload notifications into the queue before
// forwarding them.
func (c *Client) trackProgress(taskID string, sink ProgressSink) ProgressSink {
	return ProgressFunc(func(p ProgressInfo) {
		if c.queue != nil {
			switch {
			case !p.Done:
				c.queue.StartTransfer(taskID)
				c.queue.UpdateProgress(taskID, p.BytesSent, p.TotalBytes)
			case p.Success:
				c.queue.UpdateProgress(taskID, p.BytesSent, p.TotalBytes)
				c.queue.Complete(taskID)
			default:
				c.queue.Fail(taskID, errors.New(p.Error))
			}
		}
		if sink != nil {
			sink.Report(p)
		}
	})
}

func (c *Client) completeTask(taskID string, size int64) {
	if c.queue == nil {
		return
	}
	c.queue.StartTransfer(taskID)
	c.queue.UpdateProgress(taskID, size, size)
	c.queue.Complete(taskID)
}

func (c *Client) failTask(taskID string, ctx context.Context, cause error) {
	if c.queue == nil {
		return
	}
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	c.queue.Fail(taskID, cause)
}

// locationMatches checks that the resolution answer refers to the requested
// file and is an absolute URL. The object key may be opaque or carried in the
// query, so the URL itself is not searched for the name.
func locationMatches(echoedName, uploadURL, fileName string) bool {
	if echoedName != fileName {
		return false
	}
	u, err := url.Parse(uploadURL)
	return err == nil && u.Host != ""
}

// redact strips the query (signatures) from a pre-signed URL for logging.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
