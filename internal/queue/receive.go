package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fornolabs/expedite/internal/fault"
	"github.com/fornolabs/expedite/pkg/id"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

func defaultReceipt() string { return uuid.NewString() }

// pollInterval bounds how long a long-poll waiter sleeps before re-checking
// the delay and lease-expiry indexes; enqueue pulses cut it short.
const pollInterval = 250 * time.Millisecond

// promoteDue moves delayed messages whose ready time has passed into the
// availability index.
func (b *Backend) promoteDue(ctx context.Context, queue string, nowMs int64) error {
	b.index.Lock()
	defer b.index.Unlock()

	prefix := delayPrefix(queue)
	iter, err := b.db.PrefixIter(prefix)
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := b.db.NewBatch()
	defer batch.Close()
	promoted := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8+16 {
			continue
		}
		ready := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
		if ready > nowMs {
			break
		}
		mid, ok2 := idFromKeyTail(key)
		if !ok2 {
			continue
		}
		prio := b.priorityFor(queue)
		if v := iter.Value(); len(v) >= 4 {
			prio = binary.BigEndian.Uint32(v)
		}
		_ = batch.Delete(append([]byte(nil), key...), nil)
		if err := batch.Set(availKey(queue, prio, mid), nil, nil); err != nil {
			return err
		}
		promoted++
	}
	if promoted == 0 {
		return nil
	}
	return b.db.CommitBatch(ctx, batch)
}

// reclaimExpired returns messages whose lease lapsed to the availability
// index. The receive count is NOT incremented here; the next successful
// lease does that.
func (b *Backend) reclaimExpired(ctx context.Context, queue string, nowMs int64) (int, error) {
	b.index.Lock()
	defer b.index.Unlock()

	prefix := leaseIdxPrefix(queue)
	iter, err := b.db.PrefixIter(prefix)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := b.db.NewBatch()
	defer batch.Close()
	reclaimed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix)+8+16 {
			continue
		}
		exp := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
		if exp > nowMs {
			break
		}
		mid, ok2 := idFromKeyTail(key)
		if !ok2 {
			continue
		}
		l, found := b.readLease(queue, mid)
		if found && l.ExpiresMs > nowMs {
			// lease was extended; stale index entry only
			_ = batch.Delete(append([]byte(nil), key...), nil)
			continue
		}
		prio := b.priorityFor(queue)
		if found {
			prio = l.Priority
			_ = batch.Delete(receiptKey(queue, l.Receipt), nil)
		}
		_ = batch.Delete(append([]byte(nil), key...), nil)
		_ = batch.Delete(leaseKey(queue, mid), nil)
		if err := batch.Set(availKey(queue, prio, mid), nil, nil); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	if reclaimed == 0 {
		return 0, nil
	}
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return 0, err
	}
	b.pulse(queue)
	return reclaimed, nil
}

// leaseAvailable leases up to max messages from the availability index. The
// index lock covers iterator to commit so concurrent receivers never lease
// the same message.
func (b *Backend) leaseAvailable(ctx context.Context, queue string, max int, nowMs int64) ([]Message, error) {
	b.index.Lock()
	defer b.index.Unlock()

	visibility := b.visibilityFor(queue).Milliseconds()
	prefix := availPrefix(queue)
	iter, err := b.db.PrefixIter(prefix)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	batch := b.db.NewBatch()
	defer batch.Close()
	var out []Message
	dropped := 0
	for ok := iter.First(); ok && len(out) < max; ok = iter.Next() {
		key := iter.Key()
		mid, ok2 := idFromKeyTail(key)
		if !ok2 {
			continue
		}
		raw, errGet := b.db.Get(msgKey(queue, mid))
		if errGet != nil {
			// orphaned index entry (retention sweep removed the record)
			_ = batch.Delete(append([]byte(nil), key...), nil)
			dropped++
			continue
		}
		attrs, payload, okDec := decodeRecord(raw)
		if !okDec {
			b.logger.Warn("dropping corrupt message record", logpkg.Str("queue", queue), logpkg.Str("id", mid.String()))
			_ = batch.Delete(append([]byte(nil), key...), nil)
			_ = batch.Delete(msgKey(queue, mid), nil)
			dropped++
			continue
		}

		rc := b.receiveCount(queue, mid) + 1
		var rcBuf [4]byte
		binary.BigEndian.PutUint32(rcBuf[:], uint32(rc))
		if err := batch.Set(rcountKey(queue, mid), rcBuf[:], nil); err != nil {
			return nil, err
		}

		prio := b.priorityFor(queue)
		if len(key) >= len(prefix)+4 {
			prio = binary.BigEndian.Uint32(key[len(prefix) : len(prefix)+4])
		}
		l := lease{Receipt: b.newReceipt(), ExpiresMs: nowMs + visibility, Priority: prio}
		lraw, _ := json.Marshal(l)
		if err := batch.Set(leaseKey(queue, mid), lraw, nil); err != nil {
			return nil, err
		}
		if err := batch.Set(leaseIdxKey(queue, l.ExpiresMs, mid), nil, nil); err != nil {
			return nil, err
		}
		if err := batch.Set(receiptKey(queue, l.Receipt), mid.Bytes(), nil); err != nil {
			return nil, err
		}
		_ = batch.Delete(append([]byte(nil), key...), nil)

		out = append(out, Message{
			ID:            mid.String(),
			Queue:         queue,
			Body:          payload,
			Attributes:    attrs,
			ReceiptHandle: l.Receipt,
			ReceiveCount:  rc,
			ExpiresAtMs:   l.ExpiresMs,
		})
	}
	if len(out) == 0 && dropped == 0 {
		return nil, nil
	}
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return nil, err
	}
	return out, nil
}

// Receive leases up to max messages, long-polling up to wait when the queue
// is empty. A zero wait returns immediately.
func (b *Backend) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error) {
	return b.receiveAt(ctx, queue, max, wait, 0)
}

func (b *Backend) receiveAt(ctx context.Context, queue string, max int, wait time.Duration, nowMs int64) ([]Message, error) {
	if !b.knownQueue(queue) {
		return nil, fault.New(fault.Fatal, fmt.Errorf("receive: %w: %s", ErrUnknownQueue, queue))
	}
	if max <= 0 {
		max = 1
	}
	fixedClock := nowMs > 0
	deadline := time.Now().Add(wait)
	for {
		now := nowMs
		if !fixedClock {
			now = time.Now().UnixMilli()
		}
		if err := b.promoteDue(ctx, queue, now); err != nil {
			return nil, fault.New(fault.Transient, err)
		}
		if _, err := b.reclaimExpired(ctx, queue, now); err != nil {
			return nil, fault.New(fault.Transient, err)
		}
		msgs, err := b.leaseAvailable(ctx, queue, max, now)
		if err != nil {
			return nil, fault.New(fault.Transient, err)
		}
		if len(msgs) > 0 || fixedClock {
			return msgs, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		tick := pollInterval
		if remaining < tick {
			tick = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.notifyCh(queue):
		case <-time.After(tick):
		}
	}
}

// Delete acknowledges a message by receipt handle, removing it permanently.
// Stale handles (expired lease, double delete) return ErrInvalidReceipt.
func (b *Backend) Delete(ctx context.Context, queue, receipt string) error {
	if !b.knownQueue(queue) {
		return fault.New(fault.Fatal, fmt.Errorf("delete: %w: %s", ErrUnknownQueue, queue))
	}
	b.index.Lock()
	defer b.index.Unlock()

	raw, err := b.db.Get(receiptKey(queue, receipt))
	if err != nil {
		return fault.New(fault.Fatal, fmt.Errorf("delete on %s: %w", queue, ErrInvalidReceipt))
	}
	mid, err := id.FromBytes(raw)
	if err != nil {
		return fault.New(fault.Fatal, fmt.Errorf("delete on %s: %w", queue, ErrInvalidReceipt))
	}
	l, found := b.readLease(queue, mid)
	if !found || l.Receipt != receipt {
		return fault.New(fault.Fatal, fmt.Errorf("delete on %s: %w", queue, ErrInvalidReceipt))
	}

	batch := b.db.NewBatch()
	defer batch.Close()
	_ = batch.Delete(msgKey(queue, mid), nil)
	_ = batch.Delete(leaseKey(queue, mid), nil)
	_ = batch.Delete(leaseIdxKey(queue, l.ExpiresMs, mid), nil)
	_ = batch.Delete(receiptKey(queue, receipt), nil)
	_ = batch.Delete(rcountKey(queue, mid), nil)
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return fault.New(fault.Transient, fmt.Errorf("delete commit: %w", err))
	}
	return nil
}
