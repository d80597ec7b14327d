// Package failure persists a log of jobs that exhausted their retries and
// classifies their errors for automatic dead-letter recovery.
package failure

import (
	"errors"
	"fmt"
)

// Status tracks a failure record through triage. Transitions only move
// forward; resolved is terminal.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAutoRecovery Status = "auto_recovery_attempted"
	StatusManualNeeded Status = "manual_intervention_required"
	StatusResolved     Status = "resolved"
)

var statusRank = map[Status]int{
	StatusPending:      0,
	StatusAutoRecovery: 1,
	StatusManualNeeded: 2,
	StatusResolved:     3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// ErrAlreadyResolved is returned when changing a resolved record.
var ErrAlreadyResolved = errors.New("failure already resolved")

// ErrNotFound is returned for unknown failure ids.
var ErrNotFound = errors.New("failure record not found")

// canAdvance enforces monotonic status movement.
func canAdvance(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("unknown failure status %q", to)
	}
	if from == StatusResolved {
		return ErrAlreadyResolved
	}
	if statusRank[to] <= statusRank[from] {
		return fmt.Errorf("failure status cannot move %s -> %s", from, to)
	}
	return nil
}

// Record is one logged failure. MessageBody keeps the original payload so an
// operator can inspect or replay it even after queue retention expires.
type Record struct {
	ID              string `json:"id"`
	Queue           string `json:"queue"`
	Kind            string `json:"kind"`
	MessageID       string `json:"messageId"`
	MessageBody     []byte `json:"messageBody,omitempty"`
	ErrorMessage    string `json:"errorMessage"`
	OrderID         int64  `json:"orderId,omitempty"`
	Action          string `json:"action,omitempty"`
	OccurredAtMs    int64  `json:"occurredAtMs"`
	Status          Status `json:"status"`
	DLQMessageID    string `json:"dlqMessageId,omitempty"`
	ResolvedAtMs    int64  `json:"resolvedAtMs,omitempty"`
	ResolutionNotes string `json:"resolutionNotes,omitempty"`
}
