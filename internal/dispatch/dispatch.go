// Package dispatch runs the worker loops: it receives from every configured
// queue, routes envelopes to handlers, schedules retries with exponential
// backoff, and hands exhausted or fatal jobs to the dead-letter pipeline.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fornolabs/expedite/internal/alert"
	"github.com/fornolabs/expedite/internal/config"
	"github.com/fornolabs/expedite/internal/failure"
	"github.com/fornolabs/expedite/internal/fault"
	"github.com/fornolabs/expedite/internal/message"
	"github.com/fornolabs/expedite/internal/queue"
	"github.com/fornolabs/expedite/internal/retry"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// Backend is the slice of the queue store the dispatcher drives.
type Backend interface {
	Enqueue(ctx context.Context, name string, body []byte, attrs map[string]string, delay time.Duration) (string, error)
	Receive(ctx context.Context, name string, max int, wait time.Duration) ([]queue.Message, error)
	Delete(ctx context.Context, name, receipt string) error
	MoveToDLQ(ctx context.Context, name, receipt string) (string, error)
	Redrive(ctx context.Context, dlq, target string, ids []string, delay time.Duration) ([]string, error)
}

// pausePollInterval is how long a paused worker sleeps between flag checks.
const pausePollInterval = 500 * time.Millisecond

// Dispatcher owns the worker loops.
type Dispatcher struct {
	backend    Backend
	cfg        config.Config
	registry   *Registry
	policy     retry.Policy
	failures   *failure.Store
	classifier *failure.Classifier
	alerts     *alert.Emitter
	logger     logpkg.Logger

	mu     sync.RWMutex
	paused map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Dispatcher. The registry is validated against the full kind
// set; a missing handler fails startup.
func New(backend Backend, cfg config.Config, reg *Registry, policy retry.Policy, failures *failure.Store, classifier *failure.Classifier, alerts *alert.Emitter, logger logpkg.Logger) (*Dispatcher, error) {
	if err := reg.Validate(message.Kinds()); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Dispatcher{
		backend:    backend,
		cfg:        cfg,
		registry:   reg,
		policy:     policy,
		failures:   failures,
		classifier: classifier,
		alerts:     alerts,
		logger:     logger.With(logpkg.Component("dispatch")),
		paused:     make(map[string]bool),
	}, nil
}

// Start launches workerCount loops per configured queue. It returns once all
// loops are running.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for _, q := range d.cfg.Queues {
		for i := 0; i < q.WorkerCount; i++ {
			d.wg.Add(1)
			go d.workerLoop(ctx, q, i)
		}
	}
}

// Stop cancels the loops and waits for in-flight handlers to return. Jobs
// abandoned mid-lease simply re-lease after the visibility timeout.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Pause stops new receives on a queue. In-flight jobs finish normally.
func (d *Dispatcher) Pause(queueName string) error {
	if _, ok := d.cfg.Lookup(queueName); !ok {
		return fmt.Errorf("pause: %w: %s", queue.ErrUnknownQueue, queueName)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused[queueName] = true
	return nil
}

// Resume re-enables receives on a paused queue.
func (d *Dispatcher) Resume(queueName string) error {
	if _, ok := d.cfg.Lookup(queueName); !ok {
		return fmt.Errorf("resume: %w: %s", queue.ErrUnknownQueue, queueName)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.paused, queueName)
	return nil
}

// IsPaused reports the advisory pause flag for a queue.
func (d *Dispatcher) IsPaused(queueName string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.paused[queueName]
}

func (d *Dispatcher) workerLoop(ctx context.Context, q config.QueueConfig, worker int) {
	defer d.wg.Done()
	lg := d.logger.With(logpkg.Str("queue", q.Name), logpkg.Int("worker", worker))
	wait := time.Duration(d.cfg.ReceiveWaitSeconds) * time.Second
	if wait <= 0 {
		wait = 20 * time.Second
	}
	batch := d.cfg.ReceiveBatch
	if batch <= 0 {
		batch = 10
	}
	lg.Debug("worker started")
	for {
		select {
		case <-ctx.Done():
			lg.Debug("worker stopped")
			return
		default:
		}
		if d.IsPaused(q.Name) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pausePollInterval):
			}
			continue
		}
		msgs, err := d.backend.Receive(ctx, q.Name, batch, wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Warn("receive failed", logpkg.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			if ctx.Err() != nil {
				return
			}
			d.processOne(ctx, q, m, lg)
		}
	}
}

// processOne runs the full lifecycle for one received message.
func (d *Dispatcher) processOne(ctx context.Context, q config.QueueConfig, m queue.Message, lg logpkg.Logger) {
	env, err := message.Decode(m.ID, m.Queue, m.Body, m.Attributes, m.ReceiptHandle, m.ReceiveCount)
	if err != nil {
		lg.Warn("undecodable message", logpkg.Str("id", m.ID), logpkg.Err(err))
		d.routeToDLQ(ctx, q, message.Envelope{ID: m.ID, Queue: m.Queue, Payload: m.Body, ReceiptHandle: m.ReceiptHandle}, err, lg)
		return
	}

	handler, _ := d.registry.Lookup(env.Kind)
	procErr := d.runHandler(ctx, q, handler, env)
	if procErr == nil {
		if err := d.backend.Delete(ctx, q.Name, env.ReceiptHandle); err != nil {
			// job done but ack lost; idempotent handlers absorb the redelivery
			lg.Warn("ack failed after success", logpkg.Str("id", env.ID), logpkg.Err(err))
		}
		return
	}

	if fault.IsTransient(procErr) && env.RetryCount < q.MaxReceiveCount-1 {
		d.scheduleRetry(ctx, q, env, procErr, lg)
		return
	}
	d.routeToDLQ(ctx, q, env, procErr, lg)
}

// runHandler bounds the handler by 90% of the visibility timeout and converts
// panics to fatal errors so one bad job cannot kill a worker.
func (d *Dispatcher) runHandler(ctx context.Context, q config.QueueConfig, h Handler, env message.Envelope) (err error) {
	timeout := q.VisibilityTimeout() * 9 / 10
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fault.New(fault.Fatal, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Process(ctx, env)
}

// scheduleRetry re-enqueues the envelope on its own queue with backoff and
// acknowledges the original delivery.
func (d *Dispatcher) scheduleRetry(ctx context.Context, q config.QueueConfig, env message.Envelope, procErr error, lg logpkg.Logger) {
	delay := d.policy.Delay(env.RetryCount)
	attrs := message.Attrs(env.Kind, env.RetryCount+1, env.Attributes)
	if _, err := d.backend.Enqueue(ctx, q.Name, env.Payload, attrs, delay); err != nil {
		// leave the original leased; it re-leases after expiry and retries then
		lg.Warn("retry enqueue failed", logpkg.Str("id", env.ID), logpkg.Err(err))
		return
	}
	if err := d.backend.Delete(ctx, q.Name, env.ReceiptHandle); err != nil {
		lg.Warn("retry ack failed", logpkg.Str("id", env.ID), logpkg.Err(err))
	}
	lg.Info("retry scheduled",
		logpkg.Str("id", env.ID), logpkg.Str("kind", string(env.Kind)),
		logpkg.Int("attempt", env.RetryCount+1), logpkg.Dur("delay", delay),
		logpkg.Err(procErr))
}

// orderIDOf pulls order_id out of a payload when present, for failure-log
// correlation.
func orderIDOf(payload []byte) int64 {
	var p struct {
		OrderID int64 `json:"order_id"`
	}
	_ = json.Unmarshal(payload, &p)
	return p.OrderID
}

// routeToDLQ copies the message to the dead-letter queue, logs the failure,
// and either schedules automatic recovery or raises an operator alert.
func (d *Dispatcher) routeToDLQ(ctx context.Context, q config.QueueConfig, env message.Envelope, procErr error, lg logpkg.Logger) {
	dlqID, err := d.backend.MoveToDLQ(ctx, q.Name, env.ReceiptHandle)
	if err != nil {
		// lease expiry will redeliver; we classify again on the next pass
		lg.Error("dlq move failed", logpkg.Str("id", env.ID), logpkg.Err(err))
		return
	}

	rec, err := d.failures.Append(failure.Record{
		Queue:        q.Name,
		Kind:         string(env.Kind),
		MessageID:    env.ID,
		MessageBody:  env.Payload,
		ErrorMessage: procErr.Error(),
		OrderID:      orderIDOf(env.Payload),
		Action:       "dlq_routed",
		DLQMessageID: dlqID,
	})
	if err != nil {
		lg.Error("failure log append failed", logpkg.Str("id", env.ID), logpkg.Err(err))
		return
	}

	verdict := d.classifier.Classify(procErr.Error())
	if verdict.Recoverable {
		if _, err := d.failures.Advance(rec.ID, failure.StatusAutoRecovery, 0); err != nil {
			lg.Error("failure status update failed", logpkg.Str("failure", rec.ID), logpkg.Err(err))
		}
		if _, err := d.backend.Redrive(ctx, q.DLQName, q.Name, []string{dlqID}, verdict.Delay); err != nil {
			lg.Error("auto recovery redrive failed", logpkg.Str("failure", rec.ID), logpkg.Err(err))
			return
		}
		lg.Info("auto recovery scheduled",
			logpkg.Str("id", env.ID), logpkg.Str("failure", rec.ID),
			logpkg.Str("signature", verdict.Signature), logpkg.Dur("delay", verdict.Delay))
		return
	}

	if _, err := d.failures.Advance(rec.ID, failure.StatusManualNeeded, 0); err != nil {
		lg.Error("failure status update failed", logpkg.Str("failure", rec.ID), logpkg.Err(err))
	}
	lg.Error("job requires manual intervention",
		logpkg.Str("id", env.ID), logpkg.Str("kind", string(env.Kind)),
		logpkg.Str("failure", rec.ID), logpkg.Err(procErr))
	if d.alerts != nil {
		d.alerts.Emit(ctx, alert.Payload{
			AlertType: alert.TypeJobFailure,
			Message:   fmt.Sprintf("job %s on %s failed permanently: %v", env.ID, q.Name, procErr),
			Details: map[string]any{
				"queue":      q.Name,
				"kind":       string(env.Kind),
				"failure_id": rec.ID,
				"dlq_id":     dlqID,
			},
		})
	}
}
