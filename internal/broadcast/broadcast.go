// Package broadcast is the in-process fanout for order-lifecycle and alert
// events. Delivery is best effort: publishing never blocks, and a subscriber
// that cannot keep up loses events rather than slowing the pipeline. There is
// no persistence and no replay.
package broadcast

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// Event types on the wire.
const (
	TypeNewOrder          = "new_order"
	TypeOrderStatusUpdate = "order_status_update"
	TypeAlert             = "alert"
)

// Event is one broadcast message. Order events carry the order snapshot;
// alerts carry the alert payload.
type Event struct {
	Type      string          `json:"type"`
	Order     json.RawMessage `json:"order,omitempty"`
	Alert     json.RawMessage `json:"alert,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// defaultBuffer is the per-subscriber channel depth.
const defaultBuffer = 64

// Subscriber receives events on C until Close.
type Subscriber struct {
	C chan Event

	hub     *Hub
	id      uint64
	filter  *Filter
	dropped atomic.Uint64
	once    sync.Once
}

// Dropped reports how many events this subscriber lost to a full buffer.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscriber. C is closed; pending buffered events are
// still readable.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.C)
	})
}

// Hub fans events out to subscribers.
type Hub struct {
	logger logpkg.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscriber

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub returns an empty hub.
func NewHub(logger logpkg.Logger) *Hub {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Hub{
		logger: logger.With(logpkg.Component("broadcast")),
		subs:   make(map[uint64]*Subscriber),
	}
}

// SubscribeOptions tunes one subscription.
type SubscribeOptions struct {
	// Buffer overrides the channel depth; <= 0 means the default.
	Buffer int
	// Filter is an optional compiled event filter.
	Filter *Filter
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe(opts SubscribeOptions) *Subscriber {
	buf := opts.Buffer
	if buf <= 0 {
		buf = defaultBuffer
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscriber{
		C:      make(chan Event, buf),
		hub:    h,
		id:     h.nextID,
		filter: opts.Filter,
	}
	h.subs[sub.id] = sub
	return sub
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Publish delivers ev to every subscriber whose filter accepts it. Full
// buffers drop the event for that subscriber; Publish itself never blocks.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter.Eval(ev) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// Counts reports total published events and total per-subscriber drops.
func (h *Hub) Counts() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
