package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fornolabs/expedite/internal/broadcast"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

type fakeEnqueuer struct {
	queue string
	body  []byte
	attrs map[string]string
	err   error
	calls int
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, queue string, body []byte, attrs map[string]string, _ time.Duration) (string, error) {
	f.calls++
	f.queue, f.body, f.attrs = queue, body, attrs
	return "m1", f.err
}

func TestEmitBroadcastsAndEnqueues(t *testing.T) {
	hub := broadcast.NewHub(logpkg.NewNop())
	sub := hub.Subscribe(broadcast.SubscribeOptions{})
	defer sub.Close()
	fq := &fakeEnqueuer{}
	e := NewEmitter(hub, fq, "alerts", logpkg.NewNop())

	e.Emit(context.Background(), Payload{
		AlertType: TypeDLQBacklog,
		Message:   "orders-dlq backlog at 12",
		Details:   map[string]any{"queue": "orders-dlq", "depth": 12},
	})

	select {
	case ev := <-sub.C:
		if ev.Type != broadcast.TypeAlert {
			t.Fatalf("event type %s", ev.Type)
		}
		var p Payload
		if err := json.Unmarshal(ev.Alert, &p); err != nil || p.AlertType != TypeDLQBacklog {
			t.Fatalf("alert payload: %s (%v)", ev.Alert, err)
		}
	default:
		t.Fatalf("alert not broadcast")
	}

	if fq.calls != 1 || fq.queue != "alerts" {
		t.Fatalf("enqueue: calls=%d queue=%s", fq.calls, fq.queue)
	}
	if fq.attrs["kind"] != "admin_email" || fq.attrs["alertType"] != TypeDLQBacklog {
		t.Fatalf("enqueue attrs: %v", fq.attrs)
	}
}

func TestEmitSwallowsEnqueueError(t *testing.T) {
	fq := &fakeEnqueuer{err: errors.New("backend down")}
	e := NewEmitter(broadcast.NewHub(logpkg.NewNop()), fq, "alerts", logpkg.NewNop())
	// must not panic or propagate
	e.Emit(context.Background(), Payload{AlertType: TypeJobFailure, Message: "x"})
	if fq.calls != 1 {
		t.Fatalf("enqueue not attempted")
	}
}

func TestEmitWithoutQueue(t *testing.T) {
	e := NewEmitter(broadcast.NewHub(logpkg.NewNop()), nil, "", logpkg.NewNop())
	e.Emit(context.Background(), Payload{AlertType: TypeFailureRate, Message: "x"})
}
