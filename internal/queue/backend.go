package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fornolabs/expedite/internal/config"
	"github.com/fornolabs/expedite/internal/fault"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
	"github.com/fornolabs/expedite/pkg/id"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// ErrUnknownQueue is returned for queue names missing from the registry.
var ErrUnknownQueue = errors.New("unknown queue")

// ErrInvalidReceipt is returned when a receipt handle no longer maps to a
// live lease (already deleted, or the visibility timeout lapsed).
var ErrInvalidReceipt = errors.New("invalid or expired receipt handle")

// Message is a leased message as returned by Receive.
type Message struct {
	ID            string
	Queue         string
	Body          []byte
	Attributes    map[string]string
	ReceiptHandle string
	ReceiveCount  int
	// ExpiresAtMs is when the lease lapses and the message becomes
	// receivable again unless deleted.
	ExpiresAtMs int64
}

// Stats summarizes a queue for the admin surface. Counts are approximate in
// the same sense the remote-backend contract is: concurrent receivers may
// move messages between buckets mid-scan.
type Stats struct {
	Visible  int `json:"visible"`
	InFlight int `json:"inFlight"`
	Delayed  int `json:"delayed"`
}

// Item is a non-destructive listing entry (DLQ browsing, scheduled jobs).
type Item struct {
	ID           string            `json:"id"`
	Body         []byte            `json:"body"`
	Attributes   map[string]string `json:"attributes"`
	EnqueuedAtMs int64             `json:"enqueuedAtMs"`
	ReadyAtMs    int64             `json:"readyAtMs,omitempty"`
}

// lease is the persisted lease record.
type lease struct {
	Receipt   string `json:"receipt"`
	ExpiresMs int64  `json:"expiresMs"`
	Priority  uint32 `json:"priority"`
}

// Backend is the embedded queue store shared by all named queues.
type Backend struct {
	db     *pebblestore.DB
	cfg    config.Config
	gen    *id.Generator
	logger logpkg.Logger

	// newReceipt is swappable in tests.
	newReceipt func() string

	mu     sync.Mutex
	notify map[string]chan struct{}
	// index serializes every read-modify-write over the avail/delay/lease
	// indexes. Pebble batches have no conflict detection, so two receivers
	// building batches from the same iterator view would otherwise lease the
	// same message twice.
	index sync.Mutex

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// Open validates the registry and returns a Backend over db.
func Open(db *pebblestore.DB, cfg config.Config, logger logpkg.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Backend{
		db:         db,
		cfg:        cfg,
		gen:        id.NewGenerator(),
		logger:     logger.With(logpkg.Component("queue")),
		newReceipt: defaultReceipt,
		notify:     make(map[string]chan struct{}),
	}, nil
}

// knownQueue reports whether name is a registered main queue or DLQ.
func (b *Backend) knownQueue(name string) bool {
	_, ok := b.cfg.Lookup(name)
	return ok
}

// visibilityFor returns the lease duration for a queue (DLQs share their
// owning queue's timeout).
func (b *Backend) visibilityFor(name string) time.Duration {
	q, _ := b.cfg.Lookup(name)
	return q.VisibilityTimeout()
}

func (b *Backend) retentionFor(name string) time.Duration {
	q, _ := b.cfg.Lookup(name)
	return q.Retention()
}

func (b *Backend) priorityFor(name string) uint32 {
	q, _ := b.cfg.Lookup(name)
	if q.Priority < 0 {
		return 0
	}
	return uint32(q.Priority)
}

// notifyCh returns the current pulse channel for a queue.
func (b *Backend) notifyCh(queue string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.notify[queue]
	if !ok {
		ch = make(chan struct{})
		b.notify[queue] = ch
	}
	return ch
}

// pulse wakes all long-poll waiters on a queue (close-and-replace).
func (b *Backend) pulse(queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.notify[queue]; ok {
		close(ch)
	}
	b.notify[queue] = make(chan struct{})
}

// Enqueue inserts a message. delay > 0 defers availability; attrs travel
// with the message across redeliveries. Returns the assigned message id.
func (b *Backend) Enqueue(ctx context.Context, queue string, body []byte, attrs map[string]string, delay time.Duration) (string, error) {
	return b.enqueueAt(ctx, queue, body, attrs, delay, 0)
}

// enqueueAt is Enqueue with an injectable clock for tests.
func (b *Backend) enqueueAt(ctx context.Context, queue string, body []byte, attrs map[string]string, delay time.Duration, nowMs int64) (string, error) {
	if !b.knownQueue(queue) {
		return "", fault.New(fault.Fatal, fmt.Errorf("enqueue: %w: %s", ErrUnknownQueue, queue))
	}
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	if attrs == nil {
		attrs = map[string]string{}
	}

	rec, err := encodeRecord(attrs, body)
	if err != nil {
		return "", fault.New(fault.Fatal, fmt.Errorf("enqueue: encode attrs: %w", err))
	}

	b.index.Lock()
	defer b.index.Unlock()

	mid := b.gen.Next()
	batch := b.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(msgKey(queue, mid), rec, nil); err != nil {
		return "", fault.New(fault.Transient, err)
	}
	if delay > 0 {
		ready := nowMs + delay.Milliseconds()
		var prio [4]byte
		binary.BigEndian.PutUint32(prio[:], b.priorityFor(queue))
		if err := batch.Set(delayKey(queue, ready, mid), prio[:], nil); err != nil {
			return "", fault.New(fault.Transient, err)
		}
	} else {
		if err := batch.Set(availKey(queue, b.priorityFor(queue), mid), nil, nil); err != nil {
			return "", fault.New(fault.Transient, err)
		}
	}
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return "", fault.New(fault.Transient, fmt.Errorf("enqueue commit: %w", err))
	}
	if delay <= 0 {
		b.pulse(queue)
	}
	return mid.String(), nil
}

func (b *Backend) readLease(queue string, mid id.ID) (lease, bool) {
	raw, err := b.db.Get(leaseKey(queue, mid))
	if err != nil {
		return lease{}, false
	}
	var l lease
	if json.Unmarshal(raw, &l) != nil {
		return lease{}, false
	}
	return l, true
}

func (b *Backend) receiveCount(queue string, mid id.ID) int {
	raw, err := b.db.Get(rcountKey(queue, mid))
	if err != nil || len(raw) < 4 {
		return 0
	}
	return int(binary.BigEndian.Uint32(raw))
}
