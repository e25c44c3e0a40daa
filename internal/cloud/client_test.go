package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/transfer"
)

// fakeStore serves the control endpoint and the data PUT target.
type fakeStore struct {
	srv      *httptest.Server
	resolve  func(w nethttp.ResponseWriter, r *nethttp.Request)
	puts     atomic.Int32
	received atomic.Value
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{}
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/api/v1/urls/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			nethttp.Error(w, "unauthorized", nethttp.StatusUnauthorized)
			return
		}
		fs.resolve(w, r)
	})
	mux.HandleFunc("/put/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fs.puts.Add(1)
		body, _ := io.ReadAll(r.Body)
		fs.received.Store(body)
		w.WriteHeader(nethttp.StatusOK)
	})
	fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fmt.Fprintf(w, "%s/put/%s\n", fs.srv.URL, r.URL.Query().Get("filename"))
	}
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func newTestClient(t *testing.T, domain string, opts ...ClientOption) *Client {
	t.Helper()
	e := newTestExecutor(t, nil, WithBodyEncoding(BodyRaw))
	return NewClient(domain, e, nil, opts...)
}

func TestClient_ValidationIsSynchronous(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("unexpected network call")
	})
	c := NewClient("https://control.example.net", newTestExecutor(t, rt), nil, WithSizeLimit(8))
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() (*Transfer, error)
		want error
	}{
		{"empty token", func() (*Transfer, error) {
			return c.Upload(ctx, "Cache", "a.txt", 0, []byte("x"), "", nil)
		}, ErrEmptyToken},
		{"empty payload", func() (*Transfer, error) {
			return c.Upload(ctx, "Cache", "a.txt", 0, nil, "tok", nil)
		}, ErrEmptyPayload},
		{"too large", func() (*Transfer, error) {
			return c.Upload(ctx, "Cache", "a.txt", 0, make([]byte, 9), "tok", nil)
		}, ErrPayloadTooLarge},
		{"empty folder", func() (*Transfer, error) {
			return c.Download(ctx, "", "a.txt", 0, "tok", nil)
		}, ErrEmptyFolder},
		{"empty download token", func() (*Transfer, error) {
			return c.DownloadTemp(ctx, "a.txt", "", nil)
		}, ErrEmptyToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := tt.run()
			if tr != nil {
				t.Error("transfer started for an invalid request")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !IsValidationError(err) {
				t.Errorf("err %v is not a ValidationError", err)
			}
		})
	}

	if calls != 0 {
		t.Errorf("validation made %d network calls", calls)
	}
}

func TestClient_InvalidDomain(t *testing.T) {
	c := newTestClient(t, "ftp://control.example.net")
	_, err := c.UploadTemp(context.Background(), "a.txt", []byte("abc"), "tok", nil)
	if !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("err = %v, want ErrInvalidDomain", err)
	}
}

func TestClient_BulkCategoryBypassesSizeLimit(t *testing.T) {
	fs := newFakeStore(t)
	c := newTestClient(t, fs.srv.URL, WithSizeLimit(8))

	payload := []byte(strings.Repeat("x", 16))
	rec := newProgressRecorder()
	tr, err := c.Upload(context.Background(), constants.FolderMobileResources, "bundle.zip",
		constants.CategoryMobileResources, payload, "tok", rec)
	if err != nil {
		t.Fatalf("bulk upload rejected: %v", err)
	}
	tr.Wait()

	final := rec.wait(t)
	if !final.Success || final.BytesSent != 16 {
		t.Errorf("terminal = %+v", final)
	}
}

func TestClient_UploadEndToEnd(t *testing.T) {
	fs := newFakeStore(t)
	q := transfer.NewQueue(nil)
	c := newTestClient(t, fs.srv.URL, WithQueue(q))

	rec := newProgressRecorder()
	tr, err := c.UploadTemp(context.Background(), "a.txt", []byte("abc"), "tok", rec)
	if err != nil {
		t.Fatalf("UploadTemp: %v", err)
	}
	tr.Wait()

	final := rec.wait(t)
	want := ProgressInfo{FileName: "a.txt", BytesSent: 3, TotalBytes: 3, Success: true, Done: true}
	if final != want {
		t.Errorf("terminal = %+v, want %+v", final, want)
	}
	if got, _ := fs.received.Load().([]byte); string(got) != "abc" {
		t.Errorf("store received %q", got)
	}
	checkProgressOrder(t, rec.snapshot())

	task, ok := q.GetTask(tr.ID)
	if !ok {
		t.Fatal("transfer not tracked")
	}
	if task.State != transfer.TaskCompleted || task.BytesSent != 3 {
		t.Errorf("task state %s, bytes %d", task.State, task.BytesSent)
	}
}

func TestClient_UploadResolutionFailure(t *testing.T) {
	fs := newFakeStore(t)
	fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Error(w, "boom", nethttp.StatusInternalServerError)
	}
	q := transfer.NewQueue(nil)
	c := newTestClient(t, fs.srv.URL, WithQueue(q))

	rec := newProgressRecorder()
	tr, err := c.UploadTemp(context.Background(), "a.txt", []byte("abc"), "tok", rec)
	if err != nil {
		t.Fatalf("UploadTemp: %v", err)
	}
	tr.Wait()

	final := rec.wait(t)
	if final.Success || final.BytesSent != 0 || final.TotalBytes != 1 {
		t.Errorf("terminal = %+v, want 0/1 failure", final)
	}
	if final.Error != ErrResolveFailed.Error() {
		t.Errorf("error = %q", final.Error)
	}
	if n := fs.puts.Load(); n != 0 {
		t.Errorf("data PUT issued %d times", n)
	}
	if events := rec.snapshot(); len(events) != 1 {
		t.Errorf("got %d notifications, want 1", len(events))
	}

	task, _ := q.GetTask(tr.ID)
	if task.State != transfer.TaskFailed {
		t.Errorf("task state = %s, want failed", task.State)
	}
}

func TestClient_UploadFileNameMismatch(t *testing.T) {
	fs := newFakeStore(t)
	fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fmt.Fprint(w, "put/a.txt")
	}
	c := newTestClient(t, fs.srv.URL)

	rec := newProgressRecorder()
	tr, err := c.UploadTemp(context.Background(), "a.txt", []byte("abc"), "tok", rec)
	if err != nil {
		t.Fatalf("UploadTemp: %v", err)
	}
	tr.Wait()

	final := rec.wait(t)
	if final.Error != ErrFileNameMismatch.Error() {
		t.Errorf("terminal = %+v", final)
	}
	if n := fs.puts.Load(); n != 0 {
		t.Errorf("data PUT issued %d times", n)
	}
}

func TestClient_UploadOpaqueLocation(t *testing.T) {
	for _, path := range []string{"/put/3f2a9c?sig=x", "/put/upload?key=Cache/a.txt"} {
		t.Run(path, func(t *testing.T) {
			fs := newFakeStore(t)
			fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
				fmt.Fprint(w, fs.srv.URL+path)
			}
			c := newTestClient(t, fs.srv.URL)

			rec := newProgressRecorder()
			tr, err := c.UploadTemp(context.Background(), "a.txt", []byte("abc"), "tok", rec)
			if err != nil {
				t.Fatalf("UploadTemp: %v", err)
			}
			tr.Wait()

			if final := rec.wait(t); !final.Success {
				t.Errorf("terminal = %+v", final)
			}
			if n := fs.puts.Load(); n != 1 {
				t.Errorf("data PUT issued %d times, want 1", n)
			}
		})
	}
}

func TestClient_CancelDuringResolution(t *testing.T) {
	fs := newFakeStore(t)
	entered := make(chan struct{})
	fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
		close(entered)
		<-r.Context().Done()
	}
	q := transfer.NewQueue(nil)
	c := newTestClient(t, fs.srv.URL, WithQueue(q))

	rec := newProgressRecorder()
	tr, err := c.UploadTemp(context.Background(), "a.txt", []byte("abc"), "tok", rec)
	if err != nil {
		t.Fatalf("UploadTemp: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("resolution request never arrived")
	}
	tr.Cancel()

	final := rec.wait(t)
	if final.Success || final.Error != context.Canceled.Error() {
		t.Errorf("terminal = %+v, want cancellation", final)
	}
	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish after cancel")
	}
	if n := fs.puts.Load(); n != 0 {
		t.Errorf("data PUT issued %d times", n)
	}
}

func TestClient_QueueCancel(t *testing.T) {
	fs := newFakeStore(t)
	entered := make(chan struct{})
	fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
		close(entered)
		<-r.Context().Done()
	}
	q := transfer.NewQueue(nil)
	c := newTestClient(t, fs.srv.URL, WithQueue(q))

	rec := newProgressRecorder()
	tr, err := c.UploadTemp(context.Background(), "a.txt", []byte("abc"), "tok", rec)
	if err != nil {
		t.Fatalf("UploadTemp: %v", err)
	}
	<-entered

	if err := q.Cancel(tr.ID); err != nil {
		t.Fatalf("queue cancel: %v", err)
	}
	rec.wait(t)
	tr.Wait()

	task, _ := q.GetTask(tr.ID)
	if task.State != transfer.TaskCancelled {
		t.Errorf("task state = %s, want cancelled", task.State)
	}
}

func TestClient_DownloadEndToEnd(t *testing.T) {
	fs := newFakeStore(t)
	fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !strings.HasSuffix(r.URL.Path, "/download") {
			nethttp.Error(w, "wrong operation", nethttp.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "file body")
	}
	c := newTestClient(t, fs.srv.URL)

	got := make(chan ResponseInfo, 2)
	tr, err := c.DownloadTemp(context.Background(), "a.txt", "tok", ResponseFunc(func(r ResponseInfo) {
		got <- r
	}))
	if err != nil {
		t.Fatalf("DownloadTemp: %v", err)
	}
	tr.Wait()

	if len(got) != 1 {
		t.Fatalf("reported %d times, want 1", len(got))
	}
	if r := <-got; r.FileName != "a.txt" || r.Content != "file body" {
		t.Errorf("got %+v", r)
	}
}

func TestClient_DownloadFailureIsEmptyContent(t *testing.T) {
	fs := newFakeStore(t)
	fs.resolve = func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Error(w, "missing", nethttp.StatusNotFound)
	}
	c := newTestClient(t, fs.srv.URL)

	var got []ResponseInfo
	tr, err := c.DownloadTemp(context.Background(), "a.txt", "tok", ResponseFunc(func(r ResponseInfo) {
		got = append(got, r)
	}))
	if err != nil {
		t.Fatalf("DownloadTemp: %v", err)
	}
	tr.Wait()

	if len(got) != 1 || !got[0].Failed() {
		t.Errorf("got %+v, want one failed response", got)
	}
}

func TestClient_UploadFileAndReader(t *testing.T) {
	fs := newFakeStore(t)
	c := newTestClient(t, fs.srv.URL, WithSizeLimit(8))

	path := filepath.Join(t.TempDir(), "report.csv")
	if err := os.WriteFile(path, []byte("a,b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := newProgressRecorder()
	tr, err := c.UploadFile(context.Background(), "Cache", path, 0, "tok", rec)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	tr.Wait()
	if final := rec.wait(t); !final.Success || final.FileName != "report.csv" {
		t.Errorf("terminal = %+v", final)
	}

	if _, err := c.UploadReader(context.Background(), "Cache", "big.bin", 0,
		strings.NewReader(strings.Repeat("x", 100)), "tok", nil); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized reader: err = %v, want ErrPayloadTooLarge", err)
	}

	if _, err := c.UploadFile(context.Background(), "Cache", filepath.Join(t.TempDir(), "missing"), 0, "tok", nil); err == nil {
		t.Error("missing file accepted")
	}
	c.Wait()
}

func TestLocationMatches(t *testing.T) {
	tests := []struct {
		echoed, url, name string
		want              bool
	}{
		{"a.txt", "https://s3.example.net/bucket/Cache/0/a.txt?X-Amz-Signature=x", "a.txt", true},
		{"a b.txt", "https://s3.example.net/bucket/a%20b.txt", "a b.txt", true},
		{"a.txt", "https://store.example.net/o/3f2a9c?sig=x", "a.txt", true},
		{"a.txt", "https://store.example.net/upload?key=Cache/a.txt", "a.txt", true},
		{"a.txt", "/put/a.txt", "a.txt", false},
		{"b.txt", "https://s3.example.net/bucket/a.txt", "a.txt", false},
		{"a.txt", "not a url", "a.txt", false},
	}
	for _, tt := range tests {
		if got := locationMatches(tt.echoed, tt.url, tt.name); got != tt.want {
			t.Errorf("locationMatches(%q, %q, %q) = %v, want %v", tt.echoed, tt.url, tt.name, got, tt.want)
		}
	}
}

func TestRedact(t *testing.T) {
	got := redact("https://s3.example.net/b/a.txt?X-Amz-Signature=secret")
	if strings.Contains(got, "secret") {
		t.Errorf("redact kept the signature: %s", got)
	}
}
