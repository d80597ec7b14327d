package queue

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fornolabs/expedite/internal/fault"
	"github.com/fornolabs/expedite/pkg/id"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// Purge removes every message, lease, and index entry for a queue.
func (b *Backend) Purge(ctx context.Context, queue string) error {
	if !b.knownQueue(queue) {
		return fault.New(fault.Fatal, fmt.Errorf("purge: %w: %s", ErrUnknownQueue, queue))
	}
	lo := []byte(queuePrefix(queue))
	hi := append(append([]byte{}, lo...), 0xFF)

	batch := b.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(lo, hi, nil); err != nil {
		return fault.New(fault.Transient, err)
	}
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return fault.New(fault.Transient, fmt.Errorf("purge commit: %w", err))
	}
	b.logger.Info("queue purged", logpkg.Str("queue", queue))
	return nil
}

func (b *Backend) countPrefix(prefix []byte) (int, error) {
	iter, err := b.db.PrefixIter(prefix)
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, nil
}

// Stats scans the queue's indexes. Counts are point-in-time approximations
// under concurrent receives.
func (b *Backend) Stats(queue string) (Stats, error) {
	if !b.knownQueue(queue) {
		return Stats{}, fault.New(fault.Fatal, fmt.Errorf("stats: %w: %s", ErrUnknownQueue, queue))
	}
	var s Stats
	var err error
	if s.Visible, err = b.countPrefix(availPrefix(queue)); err != nil {
		return Stats{}, fault.New(fault.Transient, err)
	}
	if s.InFlight, err = b.countPrefix(leasePrefix(queue)); err != nil {
		return Stats{}, fault.New(fault.Transient, err)
	}
	if s.Delayed, err = b.countPrefix(delayPrefix(queue)); err != nil {
		return Stats{}, fault.New(fault.Transient, err)
	}
	return s, nil
}

func (b *Backend) loadItem(queue string, mid id.ID, readyAtMs int64) (Item, bool) {
	raw, err := b.db.Get(msgKey(queue, mid))
	if err != nil {
		return Item{}, false
	}
	attrs, payload, ok := decodeRecord(raw)
	if !ok {
		return Item{}, false
	}
	return Item{
		ID:           mid.String(),
		Body:         payload,
		Attributes:   attrs,
		EnqueuedAtMs: mid.TimeMs(),
		ReadyAtMs:    readyAtMs,
	}, true
}

// List returns up to max visible messages without leasing them. Used for DLQ
// browsing from the admin surface.
func (b *Backend) List(queue string, max int) ([]Item, error) {
	if !b.knownQueue(queue) {
		return nil, fault.New(fault.Fatal, fmt.Errorf("list: %w: %s", ErrUnknownQueue, queue))
	}
	if max <= 0 {
		max = 100
	}
	iter, err := b.db.PrefixIter(availPrefix(queue))
	if err != nil {
		return nil, fault.New(fault.Transient, err)
	}
	defer iter.Close()

	var out []Item
	for ok := iter.First(); ok && len(out) < max; ok = iter.Next() {
		mid, ok2 := idFromKeyTail(iter.Key())
		if !ok2 {
			continue
		}
		if it, ok3 := b.loadItem(queue, mid, 0); ok3 {
			out = append(out, it)
		}
	}
	return out, nil
}

// ListDelayed returns up to max messages waiting in the delay index, ordered
// by ready time. Used for the scheduled-jobs listing.
func (b *Backend) ListDelayed(queue string, max int) ([]Item, error) {
	if !b.knownQueue(queue) {
		return nil, fault.New(fault.Fatal, fmt.Errorf("list delayed: %w: %s", ErrUnknownQueue, queue))
	}
	if max <= 0 {
		max = 100
	}
	prefix := delayPrefix(queue)
	iter, err := b.db.PrefixIter(prefix)
	if err != nil {
		return nil, fault.New(fault.Transient, err)
	}
	defer iter.Close()

	var out []Item
	for ok := iter.First(); ok && len(out) < max; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8+16 {
			continue
		}
		ready := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
		mid, ok2 := idFromKeyTail(key)
		if !ok2 {
			continue
		}
		if it, ok3 := b.loadItem(queue, mid, ready); ok3 {
			out = append(out, it)
		}
	}
	return out, nil
}

// MoveToDLQ copies a leased message to the queue's dead-letter queue and
// acknowledges the original. The DLQ copy keeps body and attributes but gets
// a fresh id and a zero receive count.
func (b *Backend) MoveToDLQ(ctx context.Context, queue, receipt string) (string, error) {
	q, ok := b.cfg.Lookup(queue)
	if !ok {
		return "", fault.New(fault.Fatal, fmt.Errorf("move to dlq: %w: %s", ErrUnknownQueue, queue))
	}
	if q.DLQName == "" || q.DLQName == queue {
		return "", fault.New(fault.Fatal, fmt.Errorf("move to dlq: queue %s has no dead-letter queue", queue))
	}
	raw, err := b.db.Get(receiptKey(queue, receipt))
	if err != nil {
		return "", fault.New(fault.Fatal, fmt.Errorf("move to dlq on %s: %w", queue, ErrInvalidReceipt))
	}
	mid, err := id.FromBytes(raw)
	if err != nil {
		return "", fault.New(fault.Fatal, fmt.Errorf("move to dlq on %s: %w", queue, ErrInvalidReceipt))
	}
	rec, err := b.db.Get(msgKey(queue, mid))
	if err != nil {
		return "", fault.New(fault.Fatal, fmt.Errorf("move to dlq on %s: %w", queue, ErrInvalidReceipt))
	}
	attrs, payload, okDec := decodeRecord(rec)
	if !okDec {
		return "", fault.New(fault.Fatal, fmt.Errorf("move to dlq on %s: corrupt record %s", queue, mid))
	}
	dlqID, err := b.Enqueue(ctx, q.DLQName, payload, attrs, 0)
	if err != nil {
		return "", err
	}
	if err := b.Delete(ctx, queue, receipt); err != nil {
		// DLQ copy exists; original re-leases later and may be moved again.
		b.logger.Warn("dlq move left original behind",
			logpkg.Str("queue", queue), logpkg.Str("id", mid.String()), logpkg.Err(err))
		return dlqID, err
	}
	return dlqID, nil
}

// Redrive moves messages by id from a DLQ back onto its main queue with the
// given delay, resetting their receive counts. Returns the ids actually moved;
// unknown ids are skipped.
func (b *Backend) Redrive(ctx context.Context, dlq, target string, ids []string, delay time.Duration) ([]string, error) {
	if !b.knownQueue(dlq) {
		return nil, fault.New(fault.Fatal, fmt.Errorf("redrive: %w: %s", ErrUnknownQueue, dlq))
	}
	if !b.knownQueue(target) {
		return nil, fault.New(fault.Fatal, fmt.Errorf("redrive: %w: %s", ErrUnknownQueue, target))
	}
	var moved []string
	for _, raw := range ids {
		mid, err := id.Parse(raw)
		if err != nil {
			continue
		}
		rec, err := b.db.Get(msgKey(dlq, mid))
		if err != nil {
			continue
		}
		attrs, payload, ok := decodeRecord(rec)
		if !ok {
			continue
		}
		l, leased := b.readLease(dlq, mid)

		if _, err := b.enqueueAt(ctx, target, payload, attrs, delay, 0); err != nil {
			return moved, err
		}

		batch := b.db.NewBatch()
		_ = batch.Delete(msgKey(dlq, mid), nil)
		_ = batch.Delete(availKey(dlq, b.priorityFor(dlq), mid), nil)
		_ = batch.Delete(rcountKey(dlq, mid), nil)
		if leased {
			_ = batch.Delete(leaseKey(dlq, mid), nil)
			_ = batch.Delete(leaseIdxKey(dlq, l.ExpiresMs, mid), nil)
			_ = batch.Delete(receiptKey(dlq, l.Receipt), nil)
		}
		if err := b.db.CommitBatch(ctx, batch); err != nil {
			batch.Close()
			return moved, fault.New(fault.Transient, fmt.Errorf("redrive commit: %w", err))
		}
		batch.Close()
		moved = append(moved, raw)
	}
	if len(moved) > 0 {
		b.logger.Info("redrive complete",
			logpkg.Str("dlq", dlq), logpkg.Str("target", target), logpkg.Int("moved", len(moved)))
	}
	return moved, nil
}
