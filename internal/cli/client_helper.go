package cli

import (
	"fmt"

	"github.com/cloudsdk/cloudxfer/internal/cloud"
	"github.com/cloudsdk/cloudxfer/internal/config"
	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/events"
	xhttp "github.com/cloudsdk/cloudxfer/internal/http"
	"github.com/cloudsdk/cloudxfer/internal/logging"
	"github.com/cloudsdk/cloudxfer/internal/transfer"
)

// session bundles what one CLI command needs to run transfers.
type session struct {
	cfg    *config.Config
	token  string
	client *cloud.Client
	queue  *transfer.Queue
	bus    *events.Bus
	pool   *xhttp.Pool
}

// newSession loads configuration, prompts for missing secrets and builds
// the transfer client.
func newSession(logger *logging.Logger) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if xhttp.NeedsProxyPassword(cfg.Proxy) {
		pw, err := promptSecret(fmt.Sprintf("Proxy password for %s: ", cfg.Proxy.User))
		if err != nil {
			return nil, fmt.Errorf("proxy password required: %w", err)
		}
		cfg.Proxy.Password = pw
	}

	if cfg.Token == "" {
		t, err := promptToken()
		if err != nil {
			return nil, err
		}
		cfg.Token = t
	}

	domain := cfg.Domain()
	if domain == "" {
		return nil, fmt.Errorf("no domain configured for environment %q", cfg.Environment)
	}

	s, err := buildSession(cfg, domain, xhttp.DefaultClientFactory(cfg.Proxy, logger), logger)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("environment", cfg.Environment).
		Str("domain", domain).
		Str("body_encoding", cfg.Transfer.BodyEncoding).
		Msg("Session ready")
	return s, nil
}

// buildSession wires pool, executor, queue and client from cfg.
func buildSession(cfg *config.Config, domain string, factory xhttp.ClientFactory, logger *logging.Logger) (*session, error) {
	enc, err := cloud.ParseBodyEncoding(cfg.Transfer.BodyEncoding)
	if err != nil {
		return nil, err
	}

	pool := xhttp.NewPool(factory, cfg.Transfer.ClientTTL, logger.Named("pool"))
	executor, err := cloud.NewExecutor(pool, logger.Named("http"),
		cloud.WithRetryPolicy(xhttp.RetryPolicy{
			MaxAttempts: cfg.Transfer.MaxAttempts,
			Delay:       cfg.Transfer.RetryDelay,
		}),
		cloud.WithChunkSize(cfg.Transfer.ChunkSize),
		cloud.WithBodyEncoding(enc),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	bus := events.NewBus(constants.EventBusDefaultBuffer)
	queue := transfer.NewQueue(bus)
	client := cloud.NewClient(domain, executor, logger.Named("cloud"),
		cloud.WithSizeLimit(cfg.Transfer.SizeLimit),
		cloud.WithBulkCategory(cfg.Transfer.BulkCategory),
		cloud.WithQueue(queue),
	)

	go logTransferEvents(bus.Subscribe(events.Filter{Kinds: []events.Kind{events.Completed, events.Failed, events.Cancelled}}), logger.Named("queue"))

	return &session{
		cfg:    cfg,
		token:  cfg.Token,
		client: client,
		queue:  queue,
		bus:    bus,
		pool:   pool,
	}, nil
}

// Close waits for running transfers and releases the pool.
func (s *session) Close() {
	s.client.Wait()
	s.bus.Close()
	s.pool.Close()
}

// logTransferEvents writes terminal queue events to the debug log until the
// bus is closed.
func logTransferEvents(sub *events.Subscription, logger *logging.Logger) {
	for te := range sub.C {
		e := logger.Debug().
			Str("task", te.TaskID).
			Str("operation", te.Operation).
			Str("file", te.Name).
			Str("state", string(te.Kind)).
			Int64("bytes", te.BytesSent)
		if te.Err != nil {
			e = e.Err(te.Err)
		}
		e.Msg("Transfer finished")
	}
}
