package admin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fornolabs/expedite/internal/alert"
	"github.com/fornolabs/expedite/internal/broadcast"
	"github.com/fornolabs/expedite/internal/config"
	"github.com/fornolabs/expedite/internal/failure"
	"github.com/fornolabs/expedite/internal/message"
	"github.com/fornolabs/expedite/internal/queue"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

func adminConfig() config.Config {
	return config.Config{
		Queues: []config.QueueConfig{
			{Name: "orders", DLQName: "orders-dlq", VisibilityTimeoutSeconds: 30, RetentionSeconds: 3600, MaxReceiveCount: 3, WorkerCount: 1, Priority: 1},
			{Name: "emails", DLQName: "emails-dlq", VisibilityTimeoutSeconds: 10, RetentionSeconds: 3600, MaxReceiveCount: 5, WorkerCount: 1, Priority: 3},
		},
		Retry: config.RetryConfig{BaseSeconds: 60, CapSeconds: 3600},
		Alerts: config.AlertsConfig{
			DLQBacklogThreshold:    2,
			FailureRateThreshold:   0.5,
			MonitorIntervalSeconds: 60,
		},
	}
}

type fakePauser struct{ paused map[string]bool }

func (f *fakePauser) Pause(q string) error  { f.paused[q] = true; return nil }
func (f *fakePauser) Resume(q string) error { delete(f.paused, q); return nil }
func (f *fakePauser) IsPaused(q string) bool { return f.paused[q] }

func newTestService(t *testing.T) (*Service, *queue.Backend, *failure.Store, *fakePauser) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	backend, err := queue.Open(db, adminConfig(), logpkg.NewNop())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	failures := failure.NewStore(db)
	pauser := &fakePauser{paused: map[string]bool{}}
	return NewService(backend, pauser, failures, adminConfig(), logpkg.NewNop()), backend, failures, pauser
}

func TestQueueStatsIncludesPauseFlag(t *testing.T) {
	s, backend, _, pauser := newTestService(t)
	ctx := context.Background()
	_, _ = backend.Enqueue(ctx, "orders", []byte(`{}`), message.Attrs(message.KindOrderCreate, 0, nil), 0)
	_ = pauser.Pause("emails")

	infos, err := s.QueueStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("want 2 queues, got %d", len(infos))
	}
	if infos[0].Queue != "orders" || infos[0].Stats.Visible != 1 || infos[0].Paused {
		t.Fatalf("orders info: %+v", infos[0])
	}
	if infos[1].Queue != "emails" || !infos[1].Paused {
		t.Fatalf("emails info: %+v", infos[1])
	}
}

func TestScheduleJobRoutesByKind(t *testing.T) {
	s, backend, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.ScheduleJob(ctx, "", message.KindEmailSend, json.RawMessage(`{"to":"a@b.c"}`), time.Minute)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if id == "" {
		t.Fatalf("no id")
	}
	st, _ := backend.Stats("emails")
	if st.Delayed != 1 {
		t.Fatalf("job not delayed on emails: %+v", st)
	}

	jobs, err := s.ListScheduledJobs(10)
	if err != nil {
		t.Fatalf("list scheduled: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Queue != "emails" || jobs[0].Item.Attributes["kind"] != "email_send" {
		t.Fatalf("scheduled listing: %+v", jobs)
	}

	if _, err := s.ScheduleJob(ctx, "", "mystery", nil, 0); err == nil {
		t.Fatalf("unknown kind accepted")
	}
	if _, err := s.ScheduleJob(ctx, "nope", message.KindEmailSend, nil, 0); !errors.Is(err, queue.ErrUnknownQueue) {
		t.Fatalf("unknown queue: %v", err)
	}
	// analytics kind routes to a queue this deployment doesn't run
	if _, err := s.ScheduleJob(ctx, "", message.KindAnalyticsIngest, nil, 0); !errors.Is(err, queue.ErrUnknownQueue) {
		t.Fatalf("unregistered routed queue: %v", err)
	}
}

func TestClearQueue(t *testing.T) {
	s, backend, _, _ := newTestService(t)
	ctx := context.Background()
	_, _ = backend.Enqueue(ctx, "orders", []byte(`{}`), nil, 0)
	if err := s.ClearQueue(ctx, "orders"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	st, _ := backend.Stats("orders")
	if st.Visible != 0 {
		t.Fatalf("queue not cleared: %+v", st)
	}
}

func TestRecoverFromDlq(t *testing.T) {
	s, backend, _, _ := newTestService(t)
	ctx := context.Background()
	dlqID, _ := backend.Enqueue(ctx, "orders-dlq", []byte(`{"order_id":1}`), message.Attrs(message.KindOrderCreate, 2, nil), 0)

	moved, err := s.RecoverFromDlq(ctx, "orders", []string{dlqID})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(moved) != 1 {
		t.Fatalf("moved %v", moved)
	}
	main, _ := backend.Stats("orders")
	dlq, _ := backend.Stats("orders-dlq")
	if main.Visible != 1 || dlq.Visible != 0 {
		t.Fatalf("recover stats: main=%+v dlq=%+v", main, dlq)
	}
}

func TestResolveFailure(t *testing.T) {
	s, _, failures, _ := newTestService(t)
	rec, _ := failures.Append(failure.Record{Queue: "orders", ErrorMessage: "boom"})

	resolved, err := s.ResolveFailure(rec.ID, "replayed by hand")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != failure.StatusResolved {
		t.Fatalf("status %s", resolved.Status)
	}
	if _, err := s.ResolveFailure(rec.ID, "again"); !errors.Is(err, failure.ErrAlreadyResolved) {
		t.Fatalf("double resolve: %v", err)
	}
}

func TestMonitorDlqBacklogAlert(t *testing.T) {
	_, backend, failures, _ := newTestService(t)
	ctx := context.Background()
	hub := broadcast.NewHub(logpkg.NewNop())
	sub := hub.Subscribe(broadcast.SubscribeOptions{Buffer: 8})
	defer sub.Close()
	emitter := alert.NewEmitter(hub, nil, "", logpkg.NewNop())
	m := NewMonitor(backend, failures, emitter, adminConfig(), logpkg.NewNop())

	// below threshold: quiet
	_, _ = backend.Enqueue(ctx, "orders-dlq", []byte(`{}`), nil, 0)
	m.sampleOnce(ctx, time.Now().UnixMilli())
	if len(sub.C) != 0 {
		t.Fatalf("alert below threshold")
	}

	_, _ = backend.Enqueue(ctx, "orders-dlq", []byte(`{}`), nil, 0)
	m.sampleOnce(ctx, time.Now().UnixMilli())
	found := false
	for len(sub.C) > 0 {
		ev := <-sub.C
		var p alert.Payload
		_ = json.Unmarshal(ev.Alert, &p)
		if p.AlertType == alert.TypeDLQBacklog {
			found = true
		}
	}
	if !found {
		t.Fatalf("no backlog alert at threshold")
	}
}

func TestMonitorFailureRateAlert(t *testing.T) {
	_, backend, failures, _ := newTestService(t)
	ctx := context.Background()
	hub := broadcast.NewHub(logpkg.NewNop())
	sub := hub.Subscribe(broadcast.SubscribeOptions{Buffer: 8})
	defer sub.Close()
	emitter := alert.NewEmitter(hub, nil, "", logpkg.NewNop())
	m := NewMonitor(backend, failures, emitter, adminConfig(), logpkg.NewNop())

	// 0.5/s over a 60s window needs 30 failures
	for i := 0; i < 31; i++ {
		_, _ = failures.Append(failure.Record{Queue: "orders", ErrorMessage: "boom"})
	}
	m.sampleOnce(ctx, time.Now().UnixMilli())
	found := false
	for len(sub.C) > 0 {
		ev := <-sub.C
		var p alert.Payload
		_ = json.Unmarshal(ev.Alert, &p)
		if p.AlertType == alert.TypeFailureRate {
			found = true
		}
	}
	if !found {
		t.Fatalf("no failure-rate alert")
	}
}
