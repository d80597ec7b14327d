package queue

import (
	"context"
	"time"

	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// defaultSweepInterval paces the background maintenance loop.
const defaultSweepInterval = 5 * time.Second

// StartSweeper runs background maintenance until StopSweeper: expired leases
// are reclaimed (so redelivery happens even with no receiver polling), due
// delayed messages promoted, and messages past their retention window purged.
func (b *Backend) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	b.mu.Lock()
	if b.sweepStop != nil {
		b.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	b.sweepStop = stop
	b.mu.Unlock()

	b.sweepWG.Add(1)
	go func() {
		defer b.sweepWG.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				b.sweepOnce(context.Background(), time.Now().UnixMilli())
			}
		}
	}()
}

// StopSweeper stops the maintenance loop and waits for it to exit.
func (b *Backend) StopSweeper() {
	b.mu.Lock()
	stop := b.sweepStop
	b.sweepStop = nil
	b.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	b.sweepWG.Wait()
}

func (b *Backend) sweepOnce(ctx context.Context, nowMs int64) {
	for _, name := range b.cfg.QueueNames() {
		if n, err := b.reclaimExpired(ctx, name, nowMs); err != nil {
			b.logger.Warn("lease reclaim failed", logpkg.Str("queue", name), logpkg.Err(err))
		} else if n > 0 {
			b.logger.Debug("reclaimed expired leases", logpkg.Str("queue", name), logpkg.Int("count", n))
		}
		if err := b.promoteDue(ctx, name, nowMs); err != nil {
			b.logger.Warn("delay promotion failed", logpkg.Str("queue", name), logpkg.Err(err))
		}
		if err := b.expireRetained(ctx, name, nowMs); err != nil {
			b.logger.Warn("retention sweep failed", logpkg.Str("queue", name), logpkg.Err(err))
		}
	}
}

// expireRetained drops messages older than the queue's retention window.
// Index entries left behind are removed lazily by leaseAvailable when it
// finds no record under them.
func (b *Backend) expireRetained(ctx context.Context, queue string, nowMs int64) error {
	retention := b.retentionFor(queue)
	if retention <= 0 {
		return nil
	}
	b.index.Lock()
	defer b.index.Unlock()
	cutoff := nowMs - retention.Milliseconds()

	prefix := []byte(queuePrefix(queue) + prefixMsg)
	iter, err := b.db.PrefixIter(prefix)
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := b.db.NewBatch()
	defer batch.Close()
	expired := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		mid, ok2 := idFromKeyTail(iter.Key())
		if !ok2 || mid.TimeMs() > cutoff {
			continue
		}
		if _, leased := b.readLease(queue, mid); leased {
			continue
		}
		_ = batch.Delete(msgKey(queue, mid), nil)
		_ = batch.Delete(rcountKey(queue, mid), nil)
		expired++
	}
	if expired == 0 {
		return nil
	}
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return err
	}
	b.logger.Info("retention expired messages", logpkg.Str("queue", queue), logpkg.Int("count", expired))
	return nil
}
