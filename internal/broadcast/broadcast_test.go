package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	logpkg "github.com/fornolabs/expedite/pkg/log"
)

func TestPublishWithNoSubscribersNeverBlocks(t *testing.T) {
	h := NewHub(logpkg.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			h.Publish(Event{Type: TypeNewOrder})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("publish blocked with zero subscribers")
	}
	if pub, _ := h.Counts(); pub != 10_000 {
		t.Fatalf("published count %d", pub)
	}
}

func TestSubscriberReceivesInOrder(t *testing.T) {
	h := NewHub(logpkg.NewNop())
	sub := h.Subscribe(SubscribeOptions{})
	defer sub.Close()

	h.Publish(Event{Type: TypeNewOrder})
	h.Publish(Event{Type: TypeOrderStatusUpdate})

	first := <-sub.C
	second := <-sub.C
	if first.Type != TypeNewOrder || second.Type != TypeOrderStatusUpdate {
		t.Fatalf("order wrong: %s, %s", first.Type, second.Type)
	}
	if first.Timestamp == "" {
		t.Fatalf("timestamp not stamped")
	}
	if _, err := time.Parse(time.RFC3339, first.Timestamp); err != nil {
		t.Fatalf("timestamp format: %v", err)
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	h := NewHub(logpkg.NewNop())
	sub := h.Subscribe(SubscribeOptions{Buffer: 2})
	defer sub.Close()

	for i := 0; i < 10; i++ {
		h.Publish(Event{Type: TypeAlert})
	}
	if got := len(sub.C); got != 2 {
		t.Fatalf("buffered %d, want 2", got)
	}
	if sub.Dropped() != 8 {
		t.Fatalf("dropped %d, want 8", sub.Dropped())
	}
}

func TestCloseDetaches(t *testing.T) {
	h := NewHub(logpkg.NewNop())
	sub := h.Subscribe(SubscribeOptions{})
	if h.SubscriberCount() != 1 {
		t.Fatalf("subscriber not registered")
	}
	sub.Close()
	sub.Close() // idempotent
	if h.SubscriberCount() != 0 {
		t.Fatalf("subscriber not removed")
	}
	h.Publish(Event{Type: TypeNewOrder}) // must not panic on closed channel
}

func TestFilterSelectsEvents(t *testing.T) {
	h := NewHub(logpkg.NewNop())
	f, err := NewFilter(`type == "order_status_update" && order.status == "ready"`)
	if err != nil {
		t.Fatalf("compile filter: %v", err)
	}
	sub := h.Subscribe(SubscribeOptions{Filter: f})
	defer sub.Close()

	h.Publish(Event{Type: TypeNewOrder, Order: json.RawMessage(`{"id":1,"status":"pending"}`)})
	h.Publish(Event{Type: TypeOrderStatusUpdate, Order: json.RawMessage(`{"id":1,"status":"confirmed"}`)})
	h.Publish(Event{Type: TypeOrderStatusUpdate, Order: json.RawMessage(`{"id":1,"status":"ready"}`)})

	select {
	case ev := <-sub.C:
		if ev.Type != TypeOrderStatusUpdate {
			t.Fatalf("wrong event passed filter: %+v", ev)
		}
	default:
		t.Fatalf("matching event not delivered")
	}
	if len(sub.C) != 0 {
		t.Fatalf("non-matching events delivered")
	}
}

func TestFilterCompileError(t *testing.T) {
	if _, err := NewFilter(`type ==`); err == nil {
		t.Fatalf("bad expression accepted")
	}
	if f, err := NewFilter("  "); err != nil || !f.Eval(Event{Type: TypeAlert}) {
		t.Fatalf("empty filter should accept everything")
	}
}

func TestFilterEvalErrorRejects(t *testing.T) {
	f, err := NewFilter(`order.status == "ready"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	// alert event has no order payload; evaluation errors reject
	if f.Eval(Event{Type: TypeAlert, Alert: json.RawMessage(`{"k":"v"}`)}) {
		t.Fatalf("eval error should reject event")
	}
}
