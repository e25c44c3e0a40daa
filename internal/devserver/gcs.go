package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/cloudsdk/cloudxfer/internal/config"
)

// GCSBackend issues V4 signed PUT URLs with a service account key.
type GCSBackend struct {
	client     *storage.Client
	bucket     string
	accessID   string
	privateKey []byte
}

// NewGCSBackend reads the service account key file named by cfg. The same
// key signs URLs and authenticates reads. The storage client builds its own
// authenticated transport, so the proxy settings of the pool do not apply.
func NewGCSBackend(ctx context.Context, cfg config.DevServerConfig) (*GCSBackend, error) {
	if err := requireSettings("gcs", map[string]string{
		"gcs_bucket":           cfg.GCSBucket,
		"gcs_credentials_file": cfg.GCSCredentialsFile,
	}); err != nil {
		return nil, err
	}

	keyJSON, err := os.ReadFile(cfg.GCSCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS credentials: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(keyJSON, storage.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("invalid GCS service account key: %w", err)
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(keyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBackend{
		client:     client,
		bucket:     cfg.GCSBucket,
		accessID:   jwtCfg.Email,
		privateKey: jwtCfg.PrivateKey,
	}, nil
}

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := storage.SignedURL(b.bucket, key, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodPut,
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: b.accessID,
		PrivateKey:     b.privateKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return u, nil
}

func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the storage client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
