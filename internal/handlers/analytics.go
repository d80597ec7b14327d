package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fornolabs/expedite/internal/fault"
	"github.com/fornolabs/expedite/internal/message"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
)

// AnalyticsEvent is one ingested pipeline event. DedupeKey makes redelivered
// jobs a no-op.
type AnalyticsEvent struct {
	Event        string         `json:"event"`
	OrderID      int64          `json:"order_id,omitempty"`
	OccurredAtMs int64          `json:"occurred_at_ms,omitempty"`
	DedupeKey    string         `json:"dedupe_key"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// AnalyticsStore appends events to pebble keyed by dedupe key.
type AnalyticsStore struct {
	db *pebblestore.DB
}

// NewAnalyticsStore returns a store over db.
func NewAnalyticsStore(db *pebblestore.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

func analyticsKey(dedupe string) []byte { return []byte("analytics/" + dedupe) }

// Ingest writes the event unless its dedupe key was already seen. Returns
// whether the event was newly recorded.
func (s *AnalyticsStore) Ingest(ev AnalyticsEvent) (bool, error) {
	if ev.DedupeKey == "" {
		return false, fmt.Errorf("analytics event needs a dedupe key")
	}
	if _, err := s.db.Get(analyticsKey(ev.DedupeKey)); err == nil {
		return false, nil
	} else if !errors.Is(err, pebblestore.ErrNotFound) {
		return false, err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return false, err
	}
	if err := s.db.Set(analyticsKey(ev.DedupeKey), raw); err != nil {
		return false, err
	}
	return true, nil
}

// AnalyticsIngest processes analytics_ingest jobs.
type AnalyticsIngest struct{ Deps *Deps }

func (h AnalyticsIngest) Process(_ context.Context, env message.Envelope) error {
	var ev AnalyticsEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fault.New(fault.Fatal, fmt.Errorf("analytics_ingest payload: %w", err))
	}
	if ev.DedupeKey == "" {
		return fault.New(fault.Fatal, fmt.Errorf("analytics_ingest: missing dedupe_key"))
	}
	if _, err := h.Deps.Analytics.Ingest(ev); err != nil {
		return fault.New(fault.Transient, err)
	}
	return nil
}
