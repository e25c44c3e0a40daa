package http

import (
	nethttp "net/http"
	"sync"
	"testing"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func countingFactory(n *int) ClientFactory {
	return func() (*nethttp.Client, error) {
		*n++
		return &nethttp.Client{Transport: &nethttp.Transport{}}, nil
	}
}

func TestPool_SameClientWithinTTL(t *testing.T) {
	created := 0
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	pool := NewPool(countingFactory(&created), time.Hour, nil)
	pool.now = clock.Now

	first, err := pool.Client()
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	clock.Advance(59 * time.Minute)
	second, err := pool.Client()
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}

	if first != second {
		t.Error("expected the same client within the TTL")
	}
	if created != 1 {
		t.Errorf("factory called %d times, want 1", created)
	}
}

func TestPool_RecyclesAfterExpiry(t *testing.T) {
	created := 0
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	pool := NewPool(countingFactory(&created), time.Hour, nil)
	pool.now = clock.Now

	first, _ := pool.Client()
	clock.Advance(time.Hour + time.Second)
	second, _ := pool.Client()

	if first == second {
		t.Error("expected a new client after expiry")
	}
	if created != 2 {
		t.Errorf("factory called %d times, want 2", created)
	}

	// The new client gets a fresh TTL
	clock.Advance(30 * time.Minute)
	third, _ := pool.Client()
	if third != second {
		t.Error("expected the recycled client to be reused within its TTL")
	}
}

func TestPool_ConcurrentAccessCreatesOnce(t *testing.T) {
	var mu sync.Mutex
	created := 0
	pool := NewPool(func() (*nethttp.Client, error) {
		mu.Lock()
		created++
		mu.Unlock()
		return &nethttp.Client{}, nil
	}, time.Hour, nil)

	var wg sync.WaitGroup
	clients := make([]*nethttp.Client, 16)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], _ = pool.Client()
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("factory called %d times, want 1", created)
	}
	for i, c := range clients {
		if c != clients[0] {
			t.Errorf("client %d differs from client 0", i)
		}
	}
}

func TestNewTransferClient_NoProxy(t *testing.T) {
	t.Setenv("DISABLE_HTTP2", "")
	client, err := NewTransferClient(config.ProxyConfig{Mode: "no-proxy"}, nil)
	if err != nil {
		t.Fatalf("NewTransferClient() error = %v", err)
	}
	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		t.Fatalf("transport type = %T", client.Transport)
	}
	if !tr.DisableCompression {
		t.Error("expected compression disabled")
	}
	if client.Timeout != 0 {
		t.Errorf("client timeout = %v, want 0", client.Timeout)
	}
}
