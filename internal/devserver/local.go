package devserver

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ObjectRoute is the path prefix of pre-signed local object URLs.
const ObjectRoute = "/objects/"

// Signature errors
var (
	ErrSignatureExpired = errors.New("signature expired")
	ErrBadSignature     = errors.New("signature mismatch")
)

// LocalBackend keeps objects as files under a directory and signs PUT URLs
// with HMAC-SHA256. The dev server itself accepts the signed PUTs.
type LocalBackend struct {
	dir       string
	publicURL string
	secret    []byte
	now       func() time.Time
}

// NewLocalBackend creates dir if needed. An empty dir uses a directory under
// the system temp dir; an empty secret is replaced by a random one.
func NewLocalBackend(dir, publicURL string, secret []byte) (*LocalBackend, error) {
	if publicURL == "" {
		return nil, fmt.Errorf("%w: local backend needs public_url", ErrMissingSetting)
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "cloudxfer-objects")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}
	return &LocalBackend{
		dir:       dir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		secret:    secret,
		now:       time.Now,
	}, nil
}

func (b *LocalBackend) Name() string { return "local" }

// PresignPut returns <public_url>/objects/<key>?expires=<unix>&signature=<hex>.
func (b *LocalBackend) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	expires := b.now().Add(ttl).Unix()
	q := url.Values{
		"expires":   {strconv.FormatInt(expires, 10)},
		"signature": {b.sign(key, expires)},
	}
	return b.publicURL + ObjectRoute + escapeKey(key) + "?" + q.Encode(), nil
}

func (b *LocalBackend) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, b.secret)
	fmt.Fprintf(mac, "PUT\n%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by PresignPut.
func (b *LocalBackend) Verify(key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	want, err := hex.DecodeString(b.sign(key, exp))
	if err != nil {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	if b.now().Unix() > exp {
		return ErrSignatureExpired
	}
	return nil
}

// Put stores r under key, replacing any previous object atomically.
func (b *LocalBackend) Put(key string, r io.Reader) (int64, error) {
	if !validKey(key) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	dst := b.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), dst)
}

// Get reads the object stored under key.
func (b *LocalBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(key))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
