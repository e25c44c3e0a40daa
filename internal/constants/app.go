package constants

import (
	"time"
)

// Control endpoint
const (
	// LocationPathPrefix - path prefix of the URL resolution endpoint.
	// The operation ("download" or "upload") is appended.
	LocationPathPrefix = "api/v1/urls/"
)

// Folders and categories understood by the control endpoint
const (
	// FolderCache - folder for short-lived cache objects
	FolderCache = "Cache"

	// FolderMobileResources - folder for bulk mobile resource bundles
	FolderMobileResources = "MobileResource"

	// CategoryCache - category for cache objects
	CategoryCache = 0

	// CategoryMobileResources - the bulk resource category.
	// Uploads in this category bypass SizeLimit.
	CategoryMobileResources = 1000
)

// Upload limits
const (
	// SizeLimit - maximum payload size for a single upload (30 MiB)
	SizeLimit = 30 * 1024 * 1024

	// ChunkSize - size of each chunk handed to the transport during upload (1 MiB).
	// One progress notification is emitted per chunk.
	ChunkSize = 1 * 1024 * 1024
)

// Retry configuration
const (
	// MaxAttempts - total attempts for one request (initial attempt included)
	MaxAttempts = 5

	// RetryDelay - fixed delay between attempts (500ms).
	// Kept short and constant: callers are interactive clients and the whole
	// retry window stays around 2.5 seconds.
	RetryDelay = 500 * time.Millisecond
)

// Transport pool
const (
	// ClientTTL - lifetime of a pooled HTTP client before it is recycled (1 hour)
	ClientTTL = 1 * time.Hour
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPResponseHeaderTimeout - time to wait for response headers once the
	// request is written (2 minutes). Uploads of 30 MiB over slow links still fit.
	HTTPResponseHeaderTimeout = 2 * time.Minute
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// CLI Concurrency Limits
const (
	// DefaultMaxConcurrent - default concurrent file operations
	DefaultMaxConcurrent = 4

	// MinMaxConcurrent - minimum concurrent operations (sequential mode)
	MinMaxConcurrent = 1

	// MaxMaxConcurrent - maximum concurrent operations allowed
	MaxMaxConcurrent = 10
)

// UI Updates
const (
	// ProgressUpdateInterval - minimum interval between progress bar refreshes (300ms)
	ProgressUpdateInterval = 300 * time.Millisecond
)

// Disk space safety margin
const (
	// DiskSpaceSafetyMargin - multiplier applied to the bytes a download needs
	DiskSpaceSafetyMargin = 1.15
)

// Dev control endpoint
const (
	// DevServerListen - default listen address of the dev control endpoint
	DevServerListen = ":8080"

	// DevServerURL - default public URL of the dev control endpoint.
	// It is also the default "dev" domain.
	DevServerURL = "http://localhost:8080"

	// PresignTTL - default lifetime of pre-signed URLs issued by the dev endpoint
	PresignTTL = 15 * time.Minute
)
