// Package devserver implements the control endpoint for local testing. It
// resolves upload and download requests against a pluggable object store and
// hands out pre-signed PUT URLs the transfer client uploads to.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/config"
	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// Backend is an object store that can pre-sign uploads.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// PresignPut returns a URL accepting one PUT of key until ttl passes.
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Get returns the content of key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Backend errors
var (
	ErrNotFound       = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
	ErrUnknownBackend = errors.New("unknown backend")
	ErrMissingSetting = errors.New("missing backend setting")
)

// ObjectKey maps a transfer request to its object key: folder/category/name.
// Names and folders must be single path segments.
func ObjectKey(folder string, category int, fileName string) (string, error) {
	for _, seg := range []string{folder, fileName} {
		if !validSegment(seg) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, seg)
		}
	}
	return path.Join(folder, strconv.Itoa(category), fileName), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

// validKey checks a key received on the object route.
func validKey(key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !validSegment(p) {
			return false
		}
	}
	return true
}

// NewBackend builds the backend selected by cfg.Backend. Cloud SDK clients
// share httpClient so proxy settings apply to them too.
func NewBackend(ctx context.Context, cfg config.DevServerConfig, httpClient *http.Client, logger *logging.Logger) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "", "local":
		b, err = NewLocalBackend(cfg.LocalDir, cfg.PublicURL, []byte(cfg.APIToken))
	case "s3":
		b, err = NewS3Backend(ctx, cfg, httpClient)
	case "azure":
		b, err = NewAzureBackend(cfg, httpClient)
	case "gcs":
		b, err = NewGCSBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info().Str("backend", b.Name()).Msg("Object store ready")
	}
	return b, nil
}

func requireSettings(backend string, settings map[string]string) error {
	for name, value := range settings {
		if value == "" {
			return fmt.Errorf("%w: %s backend needs %s", ErrMissingSetting, backend, name)
		}
	}
	return nil
}
