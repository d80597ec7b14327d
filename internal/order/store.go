package order

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
)

// order/{id BE} -> JSON projection
const keyPrefix = "order/"

func orderKey(id int64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], uint64(id))
	return key
}

// PebbleStore is the default Store over the shared pebble instance.
type PebbleStore struct {
	db *pebblestore.DB
	mu sync.Mutex // serializes read-modify-write on UpdateStatus
}

// NewPebbleStore returns a Store backed by db.
func NewPebbleStore(db *pebblestore.DB) *PebbleStore {
	return &PebbleStore{db: db}
}

func (s *PebbleStore) Load(id int64) (Order, error) {
	raw, err := s.db.Get(orderKey(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		return Order{}, err
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return Order{}, fmt.Errorf("order %d: decode: %w", id, err)
	}
	return o, nil
}

func (s *PebbleStore) Put(o Order) error {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %d: unknown status %q", o.ID, o.Status)
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.db.Set(orderKey(o.ID), raw)
}

func (s *PebbleStore) UpdateStatus(id int64, to Status, nowMs int64) (Order, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.Load(id)
	if err != nil {
		return Order{}, err
	}
	if err := Transition(o.Status, to); err != nil {
		return Order{}, err
	}
	o.Status = to
	o.UpdatedAtMs = nowMs
	o.stamp(to, nowMs)
	raw, err := json.Marshal(o)
	if err != nil {
		return Order{}, err
	}
	if err := s.db.Set(orderKey(id), raw); err != nil {
		return Order{}, err
	}
	return o, nil
}

var _ Store = (*PebbleStore)(nil)
