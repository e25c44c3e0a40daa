package http

import (
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// ClientFactory builds a fresh HTTP client. It must not perform I/O: the pool
// calls it while holding its lock.
type ClientFactory func() (*nethttp.Client, error)

// Pool owns a single HTTP client and recycles it once its TTL has passed.
// Long-lived clients accumulate stale DNS and connection state; recycling
// bounds that without paying setup cost per request.
type Pool struct {
	mu      sync.Mutex
	factory ClientFactory
	ttl     time.Duration
	client  *nethttp.Client
	expiry  time.Time
	now     func() time.Time
	logger  *logging.Logger
}

// NewPool creates a pool. A non-positive ttl falls back to one hour.
func NewPool(factory ClientFactory, ttl time.Duration, logger *logging.Logger) *Pool {
	if ttl <= 0 {
		ttl = constants.ClientTTL
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Pool{
		factory: factory,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Client returns the live client, creating it on first use and replacing it
// after expiry. The old client's idle connections are closed on replacement.
func (p *Pool) Client() (*nethttp.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.client != nil && !now.After(p.expiry) {
		return p.client, nil
	}

	client, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	if p.client != nil {
		p.logger.Debug().Time("expired_at", p.expiry).Msg("Recycling HTTP client")
		p.client.CloseIdleConnections()
	}

	p.client = client
	p.expiry = now.Add(p.ttl)
	return p.client, nil
}

// Close releases the current client's idle connections.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.CloseIdleConnections()
		p.client = nil
	}
}
