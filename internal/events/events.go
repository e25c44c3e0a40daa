// Package events carries transfer lifecycle notifications from the transfer
// queue to whoever renders them (CLI summaries, progress bars, tests).
package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudsdk/cloudxfer/internal/constants"
)

// Kind names one step of a transfer's lifecycle.
type Kind string

const (
	Queued    Kind = "queued"    // registered, not yet running
	Resolving Kind = "resolving" // waiting for the pre-signed URL
	Started   Kind = "started"   // first bytes handed to the transport
	Progress  Kind = "progress"
	Completed Kind = "completed"
	Failed    Kind = "failed"
	Cancelled Kind = "cancelled"
)

// Terminal reports whether k closes its task.
func (k Kind) Terminal() bool {
	return k == Completed || k == Failed || k == Cancelled
}

// TransferEvent is a snapshot of a tracked transfer at the moment it changed.
type TransferEvent struct {
	Kind      Kind
	Time      time.Time
	TaskID    string
	Operation string // "upload" or "download"
	Name      string
	Folder    string
	Size      int64   // 0 for downloads until the content arrives
	BytesSent int64   // high-water mark
	Progress  float64 // 0.0 to 1.0
	Speed     float64 // bytes/sec
	Err       error
}

// Filter selects the events a subscription receives. Zero fields match
// everything.
type Filter struct {
	Kinds  []Kind
	TaskID string
}

func (f Filter) match(ev TransferEvent) bool {
	if f.TaskID != "" && f.TaskID != ev.TaskID {
		return false
	}
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, ev.Kind)
}

// Subscription delivers matching events on C until it is cancelled or the
// bus is closed, at which point C is closed.
type Subscription struct {
	C <-chan TransferEvent

	ch     chan TransferEvent
	filter Filter
	bus    *Bus
}

// Cancel detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.bus.remove(s)
}

// Bus fans transfer events out to subscribers. Publishing never blocks:
// an event that does not fit a subscriber's buffer is dropped for that
// subscriber and counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewBus creates a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = constants.EventBusDefaultBuffer
	}
	if buffer > constants.EventBusMaxBuffer {
		buffer = constants.EventBusMaxBuffer
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a subscription for events matching f. On a closed bus
// the returned subscription's channel is already closed.
func (b *Bus) Subscribe(f Filter) *Subscription {
	ch := make(chan TransferEvent, b.buffer)
	s := &Subscription{C: ch, ch: ch, filter: f, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every matching subscription. A zero Time is set to
// the current time.
func (b *Bus) Publish(ev TransferEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		if !s.filter.match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
	}
	clear(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
