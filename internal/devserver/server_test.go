package devserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/cloud"
	"github.com/cloudsdk/cloudxfer/internal/config"
	xhttp "github.com/cloudsdk/cloudxfer/internal/http"
)

func devConfig(backend string) config.DevServerConfig {
	return config.DevServerConfig{
		Backend: backend,
		URLTTL:  time.Minute,
	}
}

// startLocal serves a dev endpoint with a local backend on an httptest server.
func startLocal(t *testing.T, apiToken string, opts ...ServerOption) (*httptest.Server, *LocalBackend) {
	t.Helper()
	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := devConfig("local")
	cfg.APIToken = apiToken
	cfg.PublicURL = srv.URL
	cfg.LocalDir = t.TempDir()

	backend, err := NewBackend(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	handler = NewServer(cfg, backend, nil, opts...).Handler()
	return srv, backend.(*LocalBackend)
}

func get(t *testing.T, rawURL, token string) (int, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, rawURL, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func put(t *testing.T, rawURL, body string) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, rawURL, strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	srv, _ := startLocal(t, "")
	code, body := get(t, srv.URL+"/healthz", "")
	if code != http.StatusOK || !strings.Contains(body, `"backend":"local"`) {
		t.Errorf("healthz = %d %s", code, body)
	}
}

func TestServer_RequiresToken(t *testing.T) {
	srv, _ := startLocal(t, "s3cret")
	q := "?category=0&folder=Cache&filename=a.txt"

	if code, _ := get(t, srv.URL+"/api/v1/urls/upload"+q, ""); code != http.StatusUnauthorized {
		t.Errorf("no token: %d", code)
	}
	if code, _ := get(t, srv.URL+"/api/v1/urls/upload"+q, "wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong token: %d", code)
	}
	if code, _ := get(t, srv.URL+"/api/v1/urls/upload"+q, "s3cret"); code != http.StatusOK {
		t.Errorf("right token: %d", code)
	}
}

func TestServer_BadQuery(t *testing.T) {
	srv, _ := startLocal(t, "")
	for _, q := range []string{
		"?category=x&folder=Cache&filename=a.txt",
		"?category=0&folder=Cache",
		"?category=0&folder=Cache&filename=..",
	} {
		if code, _ := get(t, srv.URL+"/api/v1/urls/upload"+q, "tok"); code != http.StatusBadRequest {
			t.Errorf("%s: %d, want 400", q, code)
		}
	}
}

func TestServer_SignedPut(t *testing.T) {
	srv, local := startLocal(t, "", WithLimits(8, 1000))

	code, signed := get(t, srv.URL+"/api/v1/urls/upload?category=0&folder=Cache&filename=a.txt", "tok")
	if code != http.StatusOK {
		t.Fatalf("resolve: %d %s", code, signed)
	}

	if code := put(t, signed, "hello"); code != http.StatusOK {
		t.Fatalf("put: %d", code)
	}
	data, err := local.Get(context.Background(), "Cache/0/a.txt")
	if err != nil || string(data) != "hello" {
		t.Errorf("stored %q, %v", data, err)
	}

	u, _ := url.Parse(signed)
	q := u.Query()
	q.Set("signature", strings.Repeat("0", 64))
	u.RawQuery = q.Encode()
	if code := put(t, u.String(), "evil"); code != http.StatusForbidden {
		t.Errorf("forged signature: %d, want 403", code)
	}

	if code := put(t, signed, strings.Repeat("x", 8+multipartSlack+1)); code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: %d, want 413", code)
	}

	_, bulk := get(t, srv.URL+"/api/v1/urls/upload?category=1000&folder=MobileResource&filename=b.zip", "tok")
	if code := put(t, bulk, strings.Repeat("x", 8+multipartSlack+1)); code != http.StatusOK {
		t.Errorf("bulk: %d, want 200", code)
	}
}

func TestServer_DownloadMissing(t *testing.T) {
	srv, _ := startLocal(t, "")
	code, _ := get(t, srv.URL+"/api/v1/urls/download?category=0&folder=Cache&filename=none.txt", "tok")
	if code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", code)
	}
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) PresignPut(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("credentials expired")
}
func (failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("credentials expired")
}

func TestServer_BackendErrors(t *testing.T) {
	srv := httptest.NewServer(NewServer(devConfig("failing"), failingBackend{}, nil).Handler())
	defer srv.Close()

	q := "?category=0&folder=Cache&filename=a.txt"
	if code, _ := get(t, srv.URL+"/api/v1/urls/upload"+q, "tok"); code != http.StatusBadGateway {
		t.Errorf("upload: %d, want 502", code)
	}
	if code, _ := get(t, srv.URL+"/api/v1/urls/download"+q, "tok"); code != http.StatusBadGateway {
		t.Errorf("download: %d, want 502", code)
	}
	if code := put(t, srv.URL+"/objects/Cache/0/a.txt", "x"); code != http.StatusNotFound {
		t.Errorf("object route without local backend: %d, want 404", code)
	}
}

// TestServer_RoundTripWithClient uploads through the transfer client in both
// body encodings and downloads the result back.
func TestServer_RoundTripWithClient(t *testing.T) {
	srv, _ := startLocal(t, "")

	for _, enc := range []cloud.BodyEncoding{cloud.BodyMultipart, cloud.BodyRaw} {
		t.Run(string(enc), func(t *testing.T) {
			pool := xhttp.NewPool(func() (*http.Client, error) { return &http.Client{}, nil }, time.Hour, nil)
			defer pool.Close()
			exec, err := cloud.NewExecutor(pool, nil, cloud.WithBodyEncoding(enc), cloud.WithChunkSize(4))
			if err != nil {
				t.Fatal(err)
			}
			client := cloud.NewClient(srv.URL, exec, nil)
			name := "note-" + string(enc) + ".txt"

			done := make(chan cloud.ProgressInfo, 1)
			tr, err := client.UploadTemp(context.Background(), name, []byte("round trip"), "tok",
				cloud.ProgressFunc(func(p cloud.ProgressInfo) {
					if p.Done {
						done <- p
					}
				}))
			if err != nil {
				t.Fatal(err)
			}
			tr.Wait()
			if final := <-done; !final.Success || final.BytesSent != 10 {
				t.Fatalf("upload terminal = %+v", final)
			}

			got := make(chan cloud.ResponseInfo, 1)
			tr, err = client.DownloadTemp(context.Background(), name, "tok",
				cloud.ResponseFunc(func(r cloud.ResponseInfo) { got <- r }))
			if err != nil {
				t.Fatal(err)
			}
			tr.Wait()
			if r := <-got; r.Content != "round trip" {
				t.Errorf("downloaded %q", r.Content)
			}
		})
	}
}
