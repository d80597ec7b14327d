package failure

import (
	"errors"
	"testing"
	"time"

	"github.com/fornolabs/expedite/internal/config"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestAppendAndGet(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.Append(Record{
		Queue:        "orders",
		Kind:         "order_create",
		ErrorMessage: "rate limit exceeded",
		OrderID:      42,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if rec.ID == "" || rec.Status != StatusPending || rec.OccurredAtMs == 0 {
		t.Fatalf("defaults not applied: %+v", rec)
	}
	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OrderID != 42 || got.ErrorMessage != "rate limit exceeded" {
		t.Fatalf("record mismatch: %+v", got)
	}
}

func TestStatusMonotonic(t *testing.T) {
	s := openTestStore(t)
	rec, _ := s.Append(Record{Queue: "orders", ErrorMessage: "boom"})

	if _, err := s.Advance(rec.ID, StatusAutoRecovery, 1000); err != nil {
		t.Fatalf("pending -> auto: %v", err)
	}
	if _, err := s.Advance(rec.ID, StatusPending, 2000); err == nil {
		t.Fatalf("backwards move accepted")
	}
	if _, err := s.Advance(rec.ID, StatusManualNeeded, 3000); err != nil {
		t.Fatalf("auto -> manual: %v", err)
	}
}

func TestResolveIsTerminal(t *testing.T) {
	s := openTestStore(t)
	rec, _ := s.Append(Record{Queue: "orders", ErrorMessage: "boom"})

	resolved, err := s.Resolve(rec.ID, "manually replayed", 5000)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.ResolvedAtMs != 5000 || resolved.ResolutionNotes != "manually replayed" {
		t.Fatalf("resolution fields: %+v", resolved)
	}
	if _, err := s.Resolve(rec.ID, "again", 6000); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second resolve: want ErrAlreadyResolved, got %v", err)
	}
	if _, err := s.Advance(rec.ID, StatusManualNeeded, 7000); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("advance after resolve: want ErrAlreadyResolved, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	s := openTestStore(t)
	a, _ := s.Append(Record{Queue: "orders", ErrorMessage: "a"})
	b, _ := s.Append(Record{Queue: "emails", ErrorMessage: "b"})
	_, _ = s.Advance(b.ID, StatusManualNeeded, 1000)

	pending, err := s.List(StatusPending, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("pending listing: %+v", pending)
	}
	manual, _ := s.List(StatusManualNeeded, 10)
	if len(manual) != 1 || manual[0].ID != b.ID {
		t.Fatalf("manual listing: %+v", manual)
	}
	all, _ := s.List("", 10)
	if len(all) != 2 {
		t.Fatalf("want 2 records, got %d", len(all))
	}
}

func TestGetUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("not-an-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(config.Default())

	cases := []struct {
		msg         string
		recoverable bool
		delay       time.Duration
	}{
		{"Temporary Network Error while calling gateway", true, 5 * time.Minute},
		{"upstream said: rate limit exceeded (429)", true, 30 * time.Minute},
		{"service temporarily unavailable", true, time.Hour},
		{"context deadline exceeded: timeout", true, 0},
		{"invalid payload shape", false, 0},
		{"", false, 0},
	}
	for _, tc := range cases {
		v := c.Classify(tc.msg)
		if v.Recoverable != tc.recoverable {
			t.Fatalf("%q: recoverable=%v, want %v", tc.msg, v.Recoverable, tc.recoverable)
		}
		if v.Recoverable && v.Delay != tc.delay {
			t.Fatalf("%q: delay=%v, want %v", tc.msg, v.Delay, tc.delay)
		}
	}
}
