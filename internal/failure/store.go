package failure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
	"github.com/fornolabs/expedite/pkg/id"
)

// Keyspace:
//
//	failure/{id}          - record JSON; ids sort by occurrence time
//	fstatus/{status}/{id} - status index for filtered listings
const (
	recPrefix = "failure/"
	idxPrefix = "fstatus/"
)

func recKey(fid id.ID) []byte {
	key := make([]byte, len(recPrefix)+16)
	copy(key, recPrefix)
	copy(key[len(recPrefix):], fid[:])
	return key
}

func idxKey(status Status, fid id.ID) []byte {
	p := idxPrefix + string(status) + "/"
	key := make([]byte, len(p)+16)
	copy(key, p)
	copy(key[len(p):], fid[:])
	return key
}

// Store persists failure records in pebble.
type Store struct {
	db  *pebblestore.DB
	gen *id.Generator
	mu  sync.Mutex // serializes status read-modify-write
}

// NewStore returns a Store over db.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db, gen: id.NewGenerator()}
}

// Append writes a new record. Zero OccurredAtMs and Status get the current
// time and pending. The assigned id is returned on the record.
func (s *Store) Append(rec Record) (Record, error) {
	fid := s.gen.Next()
	rec.ID = fid.String()
	if rec.OccurredAtMs == 0 {
		rec.OccurredAtMs = fid.TimeMs()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if !rec.Status.Valid() {
		return Record{}, fmt.Errorf("append failure: unknown status %q", rec.Status)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(recKey(fid), raw, nil); err != nil {
		return Record{}, err
	}
	if err := batch.Set(idxKey(rec.Status, fid), nil, nil); err != nil {
		return Record{}, err
	}
	if err := s.db.CommitBatch(context.Background(), batch); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the record for fid, or ErrNotFound.
func (s *Store) Get(fid string) (Record, error) {
	parsed, err := id.Parse(fid)
	if err != nil {
		return Record{}, fmt.Errorf("failure %q: %w", fid, ErrNotFound)
	}
	raw, err := s.db.Get(recKey(parsed))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Record{}, fmt.Errorf("failure %q: %w", fid, ErrNotFound)
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("failure %q: decode: %w", fid, err)
	}
	return rec, nil
}

// Advance moves a record to a later status. ErrAlreadyResolved once the
// record is resolved; backwards moves are rejected.
func (s *Store) Advance(fid string, to Status, nowMs int64) (Record, error) {
	return s.advance(fid, to, "", nowMs)
}

// Resolve marks a record resolved with operator notes. Idempotency violations
// surface as ErrAlreadyResolved.
func (s *Store) Resolve(fid, notes string, nowMs int64) (Record, error) {
	return s.advance(fid, StatusResolved, notes, nowMs)
}

func (s *Store) advance(fid string, to Status, notes string, nowMs int64) (Record, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(fid)
	if err != nil {
		return Record{}, err
	}
	if err := canAdvance(rec.Status, to); err != nil {
		return Record{}, fmt.Errorf("failure %s: %w", fid, err)
	}
	prev := rec.Status
	rec.Status = to
	if to == StatusResolved {
		rec.ResolvedAtMs = nowMs
		rec.ResolutionNotes = notes
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	parsed, _ := id.Parse(fid)
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(recKey(parsed), raw, nil); err != nil {
		return Record{}, err
	}
	if err := batch.Delete(idxKey(prev, parsed), nil); err != nil {
		return Record{}, err
	}
	if err := batch.Set(idxKey(to, parsed), nil, nil); err != nil {
		return Record{}, err
	}
	if err := s.db.CommitBatch(context.Background(), batch); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns up to max records, oldest first. A non-empty status filters
// through the status index.
func (s *Store) List(status Status, max int) ([]Record, error) {
	if max <= 0 {
		max = 100
	}
	if status == "" {
		return s.listAll(max)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("list failures: unknown status %q", status)
	}
	iter, err := s.db.PrefixIter([]byte(idxPrefix + string(status) + "/"))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Record
	for ok := iter.First(); ok && len(out) < max; ok = iter.Next() {
		key := iter.Key()
		if len(key) < 16 {
			continue
		}
		var fid id.ID
		copy(fid[:], key[len(key)-16:])
		raw, err := s.db.Get(recKey(fid))
		if err != nil {
			continue
		}
		var rec Record
		if json.Unmarshal(raw, &rec) == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) listAll(max int) ([]Record, error) {
	iter, err := s.db.PrefixIter([]byte(recPrefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Record
	for ok := iter.First(); ok && len(out) < max; ok = iter.Next() {
		var rec Record
		if json.Unmarshal(iter.Value(), &rec) == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CountSince returns how many failures occurred at or after sinceMs, using
// the time ordering embedded in record ids. Used by the queue monitor's
// failure-rate alert.
func (s *Store) CountSince(sinceMs int64) (int, error) {
	iter, err := s.db.PrefixIter([]byte(recPrefix))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(recPrefix)+16 {
			continue
		}
		var fid id.ID
		copy(fid[:], key[len(recPrefix):])
		if fid.TimeMs() >= sinceMs {
			n++
		}
	}
	return n, nil
}
