// Package admin is the operator surface: queue stats and controls, job
// scheduling, failure triage, and dead-letter recovery. The HTTP controllers
// are thin wrappers over this service.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fornolabs/expedite/internal/config"
	"github.com/fornolabs/expedite/internal/failure"
	"github.com/fornolabs/expedite/internal/message"
	"github.com/fornolabs/expedite/internal/queue"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// Pauser is the dispatcher's pause surface.
type Pauser interface {
	Pause(queue string) error
	Resume(queue string) error
	IsPaused(queue string) bool
}

// Backend is the slice of the queue store the service uses.
type Backend interface {
	Enqueue(ctx context.Context, name string, body []byte, attrs map[string]string, delay time.Duration) (string, error)
	Purge(ctx context.Context, name string) error
	Stats(name string) (queue.Stats, error)
	List(name string, max int) ([]queue.Item, error)
	ListDelayed(name string, max int) ([]queue.Item, error)
	Redrive(ctx context.Context, dlq, target string, ids []string, delay time.Duration) ([]string, error)
}

// Service implements the administrative operations.
type Service struct {
	backend  Backend
	pauser   Pauser
	failures *failure.Store
	cfg      config.Config
	logger   logpkg.Logger
}

// NewService wires the admin surface.
func NewService(backend Backend, pauser Pauser, failures *failure.Store, cfg config.Config, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Service{
		backend:  backend,
		pauser:   pauser,
		failures: failures,
		cfg:      cfg,
		logger:   logger.With(logpkg.Component("admin")),
	}
}

// QueueInfo is one queue's stats plus its pause flag.
type QueueInfo struct {
	Queue  string      `json:"queue"`
	Stats  queue.Stats `json:"stats"`
	Paused bool        `json:"paused"`
}

// QueueStats reports every main queue.
func (s *Service) QueueStats() ([]QueueInfo, error) {
	out := make([]QueueInfo, 0, len(s.cfg.Queues))
	for _, q := range s.cfg.Queues {
		st, err := s.backend.Stats(q.Name)
		if err != nil {
			return nil, err
		}
		paused := false
		if s.pauser != nil {
			paused = s.pauser.IsPaused(q.Name)
		}
		out = append(out, QueueInfo{Queue: q.Name, Stats: st, Paused: paused})
	}
	return out, nil
}

// DlqStats reports every dead-letter queue.
func (s *Service) DlqStats() ([]QueueInfo, error) {
	out := make([]QueueInfo, 0, len(s.cfg.Queues))
	for _, q := range s.cfg.Queues {
		st, err := s.backend.Stats(q.DLQName)
		if err != nil {
			return nil, err
		}
		out = append(out, QueueInfo{Queue: q.DLQName, Stats: st})
	}
	return out, nil
}

// ClearQueue purges a queue, main or DLQ.
func (s *Service) ClearQueue(ctx context.Context, name string) error {
	s.logger.Warn("clearing queue", logpkg.Str("queue", name))
	return s.backend.Purge(ctx, name)
}

// PauseQueue sets the advisory pause flag.
func (s *Service) PauseQueue(name string) error {
	if s.pauser == nil {
		return fmt.Errorf("pause: dispatcher not running")
	}
	s.logger.Info("queue paused", logpkg.Str("queue", name))
	return s.pauser.Pause(name)
}

// ResumeQueue clears the pause flag.
func (s *Service) ResumeQueue(name string) error {
	if s.pauser == nil {
		return fmt.Errorf("resume: dispatcher not running")
	}
	s.logger.Info("queue resumed", logpkg.Str("queue", name))
	return s.pauser.Resume(name)
}

// defaultQueueFor routes a kind to its conventional queue.
func defaultQueueFor(kind message.Kind) string {
	switch kind {
	case message.KindOrderCreate, message.KindOrderStatus, message.KindOrderCancel:
		return "orders"
	case message.KindEmailSend:
		return "emails"
	case message.KindPushSend:
		return "notifications"
	case message.KindAnalyticsIngest:
		return "analytics"
	case message.KindAdminEmail:
		return "alerts"
	}
	return ""
}

// ScheduleJob enqueues a job of the given kind with an optional delay. An
// empty queueName routes by kind.
func (s *Service) ScheduleJob(ctx context.Context, queueName string, kind message.Kind, args json.RawMessage, delay time.Duration) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("schedule: unknown kind %q", kind)
	}
	if queueName == "" {
		queueName = defaultQueueFor(kind)
	}
	if _, ok := s.cfg.Lookup(queueName); !ok {
		return "", fmt.Errorf("schedule: %w: %s", queue.ErrUnknownQueue, queueName)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	id, err := s.backend.Enqueue(ctx, queueName, args, message.Attrs(kind, 0, nil), delay)
	if err != nil {
		return "", err
	}
	s.logger.Info("job scheduled",
		logpkg.Str("queue", queueName), logpkg.Str("kind", string(kind)),
		logpkg.Str("id", id), logpkg.Dur("delay", delay))
	return id, nil
}

// ScheduledJob is one delayed message awaiting its ready time.
type ScheduledJob struct {
	Queue string     `json:"queue"`
	Item  queue.Item `json:"item"`
}

// ListScheduledJobs returns delayed messages across all main queues.
func (s *Service) ListScheduledJobs(max int) ([]ScheduledJob, error) {
	if max <= 0 {
		max = 100
	}
	var out []ScheduledJob
	for _, q := range s.cfg.Queues {
		items, err := s.backend.ListDelayed(q.Name, max-len(out))
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			out = append(out, ScheduledJob{Queue: q.Name, Item: it})
		}
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

// ListFailedJobs returns failure records, optionally filtered by status.
func (s *Service) ListFailedJobs(status failure.Status, max int) ([]failure.Record, error) {
	return s.failures.List(status, max)
}

// ListDlqMessages exposes a DLQ's parked messages for inspection.
func (s *Service) ListDlqMessages(name string, max int) ([]queue.Item, error) {
	return s.backend.List(name, max)
}

// RecoverFromDlq redrives the named messages from a queue's DLQ back onto the
// main queue. Returns the ids actually moved.
func (s *Service) RecoverFromDlq(ctx context.Context, queueName string, ids []string) ([]string, error) {
	q, ok := s.cfg.Lookup(queueName)
	if !ok {
		return nil, fmt.Errorf("recover: %w: %s", queue.ErrUnknownQueue, queueName)
	}
	moved, err := s.backend.Redrive(ctx, q.DLQName, q.Name, ids, 0)
	if err != nil {
		return nil, err
	}
	s.logger.Info("dlq recovery", logpkg.Str("queue", q.Name), logpkg.Int("moved", len(moved)))
	return moved, nil
}

// ResolveFailure marks a failure record resolved with operator notes.
func (s *Service) ResolveFailure(id, notes string) (failure.Record, error) {
	rec, err := s.failures.Resolve(id, notes, 0)
	if err != nil {
		return failure.Record{}, err
	}
	s.logger.Info("failure resolved", logpkg.Str("failure", id))
	return rec, nil
}
