// Package fault carries the pipeline's error taxonomy. Every handler or
// backend error is reduced to one of three kinds before the dispatcher acts
// on it: Transient failures are retried with backoff, Fatal failures go
// straight to the failure classifier, and Escalation failures are the
// classifier's own verdict that a human has to act.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// Unknown means the error carried no classification; treated as Transient
	// by the dispatcher so an unannotated network hiccup still retries.
	Unknown Kind = iota
	// Transient covers network blips, throttling, timeouts, and temporary
	// downstream unavailability.
	Transient
	// Fatal covers malformed payloads, unknown message kinds, and
	// business-rule violations. Never retried at the message level.
	Fatal
	// Escalation means no automatic recovery path exists; an operator must
	// resolve the failure log entry.
	Escalation
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Escalation:
		return "escalation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind. Returns nil for a nil err.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Transientf formats a Transient error.
func Transientf(format string, args ...any) error {
	return &Error{Kind: Transient, Err: fmt.Errorf(format, args...)}
}

// Fatalf formats a Fatal error.
func Fatalf(format string, args ...any) error {
	return &Error{Kind: Fatal, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Errors without a fault annotation report Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// IsTransient reports whether err should be retried. Unclassified errors
// count as transient so plain downstream errors get the retry budget before
// dead-lettering.
func IsTransient(err error) bool {
	k := KindOf(err)
	return k == Transient || k == Unknown
}

// IsFatal reports whether err must bypass message-level retries.
func IsFatal(err error) bool { return KindOf(err) == Fatal }
