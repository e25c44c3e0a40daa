// Package config provides configuration management for cloudxfer.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/cloudsdk/cloudxfer/internal/constants"
)

// Config is the full configuration of the transfer engine, the CLI and the
// dev control endpoint.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\cloudxfer\config
//   - Unix: ~/.config/cloudxfer/config
//
// INI format:
//
//	[cloud]
//	environment = prod
//	token = <bearer-token>
//	debug = false
//
//	[domains]
//	dev = http://localhost:8080
//	release = https://cloud.example.com
//
//	[transfer]
//	max_attempts = 5
//	retry_delay_ms = 500
//	chunk_size = 1048576
//	body_encoding = multipart
//
//	[proxy]
//	mode = no-proxy
type Config struct {
	// Cloud connection settings
	Environment string
	Token       string
	Debug       bool

	Domains  Domains
	Transfer TransferConfig
	Proxy    ProxyConfig
	Dev      DevServerConfig
}

// TransferConfig tunes the retry executor, the progress stream and the pool.
type TransferConfig struct {
	// MaxAttempts is the total number of attempts per request. Default: 5
	MaxAttempts int

	// RetryDelay is the fixed delay between attempts. Default: 500ms
	RetryDelay time.Duration

	// ChunkSize is the upload chunk size in bytes. Default: 1 MiB
	ChunkSize int

	// SizeLimit is the upload size ceiling in bytes. Default: 30 MiB
	SizeLimit int64

	// BulkCategory bypasses SizeLimit. Default: 1000
	BulkCategory int

	// ClientTTL is the lifetime of a pooled HTTP client. Default: 1h
	ClientTTL time.Duration

	// BodyEncoding is "multipart" (default) or "raw".
	BodyEncoding string

	// MaxConcurrent bounds concurrent CLI transfers. Default: 4
	MaxConcurrent int
}

// ProxyConfig holds outbound proxy settings.
type ProxyConfig struct {
	Mode     string // "no-proxy", "system", "basic", "ntlm"
	Host     string
	Port     int
	User     string
	Password string
	NoProxy  string // Comma-separated list of hosts to bypass proxy
}

// DevServerConfig configures the dev control endpoint.
type DevServerConfig struct {
	Listen    string
	PublicURL string
	Backend   string // "local", "s3", "azure", "gcs"
	APIToken  string // when set, bearer tokens must match it
	URLTTL    time.Duration
	LocalDir  string // object directory of the local backend

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	AzureAccount   string
	AzureKey       string
	AzureContainer string
	AzureEndpoint  string

	GCSBucket          string
	GCSCredentialsFile string
}

// Body encodings
const (
	BodyEncodingMultipart = "multipart"
	BodyEncodingRaw       = "raw"
)

// Validation errors
var (
	ErrInvalidMaxAttempts  = errors.New("max_attempts must be between 1 and 20")
	ErrInvalidRetryDelay   = errors.New("retry_delay_ms must not be negative")
	ErrInvalidChunkSize    = errors.New("chunk_size must be positive")
	ErrInvalidSizeLimit    = errors.New("size_limit must be positive")
	ErrInvalidClientTTL    = errors.New("client_ttl_minutes must be positive")
	ErrInvalidBodyEncoding = errors.New("body_encoding must be multipart or raw")
	ErrInvalidProxyMode    = errors.New("proxy mode must be no-proxy, system, basic or ntlm")
	ErrInvalidConcurrency  = errors.New("max_concurrent must be between 1 and 10")
)

// ConfigDir is the directory name under ~/.config
const ConfigDir = "cloudxfer"

// DefaultConfigPath returns the default path for the config file.
// - Windows: %USERPROFILE%\.config\cloudxfer\config
// - Unix: ~/.config/cloudxfer/config
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultTokenPath returns the default token file path, or "" when the home
// directory cannot be determined.
func DefaultTokenPath() string {
	dir, err := configDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "token")
}

func configDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", ConfigDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", ConfigDir), nil
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Environment: "dev",
		Domains: Domains{
			Dev: constants.DevServerURL,
		},
		Transfer: TransferConfig{
			MaxAttempts:   constants.MaxAttempts,
			RetryDelay:    constants.RetryDelay,
			ChunkSize:     constants.ChunkSize,
			SizeLimit:     constants.SizeLimit,
			BulkCategory:  constants.CategoryMobileResources,
			ClientTTL:     constants.ClientTTL,
			BodyEncoding:  BodyEncodingMultipart,
			MaxConcurrent: constants.DefaultMaxConcurrent,
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
		},
		Dev: DevServerConfig{
			Listen:    constants.DevServerListen,
			PublicURL: constants.DevServerURL,
			Backend:   "local",
			URLTTL:    constants.PresignTTL,
			S3Region:  "us-east-1",
		},
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil // Return defaults if we can't determine path
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cloud := iniFile.Section("cloud")
	cfg.Environment = cloud.Key("environment").MustString(cfg.Environment)
	cfg.Token = cloud.Key("token").String()
	cfg.Debug = cloud.Key("debug").MustBool(false)

	domains := iniFile.Section("domains")
	cfg.Domains.Dev = domains.Key("dev").MustString(cfg.Domains.Dev)
	cfg.Domains.Release = domains.Key("release").String()
	cfg.Domains.CNDev = domains.Key("cn_dev").String()
	cfg.Domains.CNRelease = domains.Key("cn_release").String()

	tr := iniFile.Section("transfer")
	cfg.Transfer.MaxAttempts = tr.Key("max_attempts").MustInt(cfg.Transfer.MaxAttempts)
	cfg.Transfer.RetryDelay = time.Duration(tr.Key("retry_delay_ms").MustInt64(cfg.Transfer.RetryDelay.Milliseconds())) * time.Millisecond
	cfg.Transfer.ChunkSize = tr.Key("chunk_size").MustInt(cfg.Transfer.ChunkSize)
	cfg.Transfer.SizeLimit = tr.Key("size_limit").MustInt64(cfg.Transfer.SizeLimit)
	cfg.Transfer.BulkCategory = tr.Key("bulk_category").MustInt(cfg.Transfer.BulkCategory)
	cfg.Transfer.ClientTTL = time.Duration(tr.Key("client_ttl_minutes").MustInt(int(cfg.Transfer.ClientTTL.Minutes()))) * time.Minute
	cfg.Transfer.BodyEncoding = tr.Key("body_encoding").MustString(cfg.Transfer.BodyEncoding)
	cfg.Transfer.MaxConcurrent = tr.Key("max_concurrent").MustInt(cfg.Transfer.MaxConcurrent)

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(0)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.Password = proxy.Key("password").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()

	dev := iniFile.Section("devserver")
	cfg.Dev.Listen = dev.Key("listen").MustString(cfg.Dev.Listen)
	cfg.Dev.PublicURL = dev.Key("public_url").MustString(cfg.Dev.PublicURL)
	cfg.Dev.Backend = dev.Key("backend").MustString(cfg.Dev.Backend)
	cfg.Dev.APIToken = dev.Key("api_token").String()
	cfg.Dev.URLTTL = time.Duration(dev.Key("url_ttl_minutes").MustInt(int(cfg.Dev.URLTTL.Minutes()))) * time.Minute
	cfg.Dev.LocalDir = dev.Key("local_dir").String()
	cfg.Dev.S3Bucket = dev.Key("s3_bucket").String()
	cfg.Dev.S3Region = dev.Key("s3_region").MustString(cfg.Dev.S3Region)
	cfg.Dev.S3Endpoint = dev.Key("s3_endpoint").String()
	cfg.Dev.S3AccessKey = dev.Key("s3_access_key").String()
	cfg.Dev.S3SecretKey = dev.Key("s3_secret_key").String()
	cfg.Dev.AzureAccount = dev.Key("azure_account").String()
	cfg.Dev.AzureKey = dev.Key("azure_key").String()
	cfg.Dev.AzureContainer = dev.Key("azure_container").String()
	cfg.Dev.AzureEndpoint = dev.Key("azure_endpoint").String()
	cfg.Dev.GCSBucket = dev.Key("gcs_bucket").String()
	cfg.Dev.GCSCredentialsFile = dev.Key("gcs_credentials_file").String()

	return cfg, nil
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist.
// The token is stored in the file - ensure appropriate file permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sections := []struct {
		name   string
		values [][2]string
	}{
		{"cloud", [][2]string{
			{"environment", cfg.Environment},
			{"token", cfg.Token},
			{"debug", strconv.FormatBool(cfg.Debug)},
		}},
		{"domains", [][2]string{
			{"dev", cfg.Domains.Dev},
			{"release", cfg.Domains.Release},
			{"cn_dev", cfg.Domains.CNDev},
			{"cn_release", cfg.Domains.CNRelease},
		}},
		{"transfer", [][2]string{
			{"max_attempts", strconv.Itoa(cfg.Transfer.MaxAttempts)},
			{"retry_delay_ms", strconv.FormatInt(cfg.Transfer.RetryDelay.Milliseconds(), 10)},
			{"chunk_size", strconv.Itoa(cfg.Transfer.ChunkSize)},
			{"size_limit", strconv.FormatInt(cfg.Transfer.SizeLimit, 10)},
			{"bulk_category", strconv.Itoa(cfg.Transfer.BulkCategory)},
			{"client_ttl_minutes", strconv.Itoa(int(cfg.Transfer.ClientTTL.Minutes()))},
			{"body_encoding", cfg.Transfer.BodyEncoding},
			{"max_concurrent", strconv.Itoa(cfg.Transfer.MaxConcurrent)},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.Proxy.Mode},
			{"host", cfg.Proxy.Host},
			{"port", strconv.Itoa(cfg.Proxy.Port)},
			{"user", cfg.Proxy.User},
			{"no_proxy", cfg.Proxy.NoProxy},
		}},
		{"devserver", [][2]string{
			{"listen", cfg.Dev.Listen},
			{"public_url", cfg.Dev.PublicURL},
			{"backend", cfg.Dev.Backend},
			{"api_token", cfg.Dev.APIToken},
			{"url_ttl_minutes", strconv.Itoa(int(cfg.Dev.URLTTL.Minutes()))},
			{"local_dir", cfg.Dev.LocalDir},
			{"s3_bucket", cfg.Dev.S3Bucket},
			{"s3_region", cfg.Dev.S3Region},
			{"s3_endpoint", cfg.Dev.S3Endpoint},
			{"s3_access_key", cfg.Dev.S3AccessKey},
			{"s3_secret_key", cfg.Dev.S3SecretKey},
			{"azure_account", cfg.Dev.AzureAccount},
			{"azure_key", cfg.Dev.AzureKey},
			{"azure_container", cfg.Dev.AzureContainer},
			{"azure_endpoint", cfg.Dev.AzureEndpoint},
			{"gcs_bucket", cfg.Dev.GCSBucket},
			{"gcs_credentials_file", cfg.Dev.GCSCredentialsFile},
		}},
	}

	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.values {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Proxy password is never persisted; it is prompted or passed per run.

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// MergeWithFlags merges config with flags, token file, and environment variables.
// Priority (highest to lowest):
//  1. --token flag
//  2. CLOUDXFER_TOKEN environment variable
//  3. --token-file flag (explicit token file path)
//  4. Default token file (~/.config/cloudxfer/token)
//  5. token in the config file
//
// The environment follows the same rule with --env and CLOUDXFER_ENV.
func (c *Config) MergeWithFlags(token, tokenFilePath, environment string) {
	if defaultTokenPath := DefaultTokenPath(); defaultTokenPath != "" {
		if t, err := ReadTokenFile(defaultTokenPath); err == nil {
			c.Token = t
		}
	}
	if tokenFilePath != "" {
		if t, err := ReadTokenFile(tokenFilePath); err == nil {
			c.Token = t
		}
	}
	if envToken := os.Getenv("CLOUDXFER_TOKEN"); envToken != "" {
		c.Token = envToken
	}
	if token != "" {
		c.Token = token
	}

	if envName := os.Getenv("CLOUDXFER_ENV"); envName != "" {
		c.Environment = envName
	}
	if environment != "" {
		c.Environment = environment
	}

	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.Proxy.Host == "" {
		c.parseProxyURL(envProxy)
	}
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")
	proxyURL = strings.TrimSuffix(proxyURL, "/")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.Proxy.Host = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(parts[1]); err == nil {
			c.Proxy.Port = port
		}
	}
	if c.Proxy.Host != "" && (c.Proxy.Mode == "no-proxy" || c.Proxy.Mode == "") {
		c.Proxy.Mode = "system"
	}
}

// Validate checks the transfer tuning and proxy settings.
// The token is checked per call by the transfer engine, not here.
func (c *Config) Validate() error {
	t := c.Transfer
	if t.MaxAttempts < 1 || t.MaxAttempts > 20 {
		return ErrInvalidMaxAttempts
	}
	if t.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if t.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if t.SizeLimit <= 0 {
		return ErrInvalidSizeLimit
	}
	if t.ClientTTL <= 0 {
		return ErrInvalidClientTTL
	}
	if t.BodyEncoding != BodyEncodingMultipart && t.BodyEncoding != BodyEncodingRaw {
		return ErrInvalidBodyEncoding
	}
	if t.MaxConcurrent < constants.MinMaxConcurrent || t.MaxConcurrent > constants.MaxMaxConcurrent {
		return ErrInvalidConcurrency
	}
	switch strings.ToLower(c.Proxy.Mode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// Domain returns the control endpoint base for the configured environment.
func (c *Config) Domain() string {
	return c.Domains.Resolve(c.Environment)
}

// ReadTokenFile reads a bearer token from a file.
// The file should contain only the token (whitespace is trimmed).
// Warns if file permissions are too open (not 0600 on Unix systems).
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	mode := info.Mode().Perm()
	if runtime.GOOS != "windows" && mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty")
	}
	return token, nil
}

// WriteTokenFile writes a bearer token to a file with secure permissions (0600).
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cannot write empty token")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}
