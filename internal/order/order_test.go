package order

import (
	"errors"
	"testing"

	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
)

func openTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPebbleStore(db)
}

func TestTransitionGraph(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusPending, StatusPaymentFailed},
		{StatusConfirmed, StatusReady},
		{StatusConfirmed, StatusCancelled},
		{StatusReady, StatusOutForDelivery},
		{StatusOutForDelivery, StatusDelivered},
		{StatusOutForDelivery, StatusCancelled},
		{StatusPaymentFailed, StatusConfirmed},
		{StatusPaymentFailed, StatusCancelled},
	}
	for _, tc := range allowed {
		if err := Transition(tc[0], tc[1]); err != nil {
			t.Fatalf("%s -> %s should be allowed: %v", tc[0], tc[1], err)
		}
	}
	rejected := [][2]Status{
		{StatusPending, StatusDelivered},
		{StatusPending, StatusReady},
		{StatusDelivered, StatusPending},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusConfirmed},
		{StatusReady, StatusCancelled},
		{StatusReady, StatusConfirmed},
	}
	for _, tc := range rejected {
		if err := Transition(tc[0], tc[1]); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s should be rejected, got %v", tc[0], tc[1], err)
		}
	}
	if err := Transition("bogus", StatusConfirmed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unknown status accepted: %v", err)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusCancelled} {
		for _, to := range []Status{StatusPending, StatusConfirmed, StatusReady, StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusPaymentFailed} {
			if CanTransition(s, to) {
				t.Fatalf("terminal %s allows -> %s", s, to)
			}
		}
	}
}

func TestStoreUpdateStatus(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put(Order{ID: 42, Status: StatusPending, CustomerEmail: "a@b.c", CreatedAtMs: 1000}); err != nil {
		t.Fatalf("put: %v", err)
	}

	o, err := s.UpdateStatus(42, StatusConfirmed, 2000)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if o.Status != StatusConfirmed || o.ConfirmedAtMs != 2000 || o.UpdatedAtMs != 2000 {
		t.Fatalf("projection after confirm: %+v", o)
	}

	if _, err := s.UpdateStatus(42, StatusDelivered, 3000); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirmed -> delivered should fail, got %v", err)
	}
	// rejected transition leaves projection untouched
	o, _ = s.Load(42)
	if o.Status != StatusConfirmed || o.UpdatedAtMs != 2000 {
		t.Fatalf("rejected transition mutated order: %+v", o)
	}

	for _, step := range []struct {
		to Status
		at int64
	}{
		{StatusReady, 4000},
		{StatusOutForDelivery, 5000},
		{StatusDelivered, 6000},
	} {
		if o, err = s.UpdateStatus(42, step.to, step.at); err != nil {
			t.Fatalf("%s: %v", step.to, err)
		}
	}
	if o.ReadyAtMs != 4000 || o.OutForDeliveryAtMs != 5000 || o.DeliveredAtMs != 6000 {
		t.Fatalf("status timestamps: %+v", o)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load(7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateStatus(7, StatusConfirmed, 1000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: want ErrNotFound, got %v", err)
	}
}
