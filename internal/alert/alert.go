// Package alert notifies operators about pipeline trouble: a broadcast event
// for live dashboards plus an admin email job on the low-volume alerts queue.
package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fornolabs/expedite/internal/broadcast"
	"github.com/fornolabs/expedite/internal/message"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// Alert types emitted by the pipeline.
const (
	TypeJobFailure     = "job_failure"
	TypeDLQBacklog     = "dlq_backlog"
	TypeFailureRate    = "failure_rate"
	TypePaymentFailure = "payment_failure"
)

// Enqueuer is the slice of the queue backend the emitter needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, body []byte, attrs map[string]string, delay time.Duration) (string, error)
}

// Payload is the alert body, broadcast as-is and mailed to operators.
type Payload struct {
	AlertType string         `json:"alertType"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Emitter publishes alerts. Emit never fails the caller: a full hub buffer
// drops, and an enqueue error is logged and swallowed. Alerting must not
// take the pipeline down with it.
type Emitter struct {
	hub    *broadcast.Hub
	queue  Enqueuer
	target string
	logger logpkg.Logger
}

// NewEmitter wires an Emitter to the hub and the alerts queue. An empty
// target disables the email leg.
func NewEmitter(hub *broadcast.Hub, queue Enqueuer, target string, logger logpkg.Logger) *Emitter {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Emitter{hub: hub, queue: queue, target: target, logger: logger.With(logpkg.Component("alert"))}
}

// Emit broadcasts the alert and enqueues the admin email.
func (e *Emitter) Emit(ctx context.Context, p Payload) {
	raw, err := json.Marshal(p)
	if err != nil {
		e.logger.Error("alert payload not serializable", logpkg.Str("alertType", p.AlertType), logpkg.Err(err))
		return
	}
	if e.hub != nil {
		e.hub.Publish(broadcast.Event{Type: broadcast.TypeAlert, Alert: raw})
	}
	if e.queue == nil || e.target == "" {
		return
	}
	attrs := message.Attrs(message.KindAdminEmail, 0, map[string]string{"alertType": p.AlertType})
	if _, err := e.queue.Enqueue(ctx, e.target, raw, attrs, 0); err != nil {
		e.logger.Error("alert email enqueue failed",
			logpkg.Str("alertType", p.AlertType), logpkg.Str("queue", e.target), logpkg.Err(err))
	}
}
