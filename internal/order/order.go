// Package order holds the pipeline's order projection and the status state
// machine. It is not the storefront's order system of record; it keeps just
// enough state to process jobs and broadcast lifecycle events.
package order

import (
	"errors"
	"fmt"
)

// Status is an order's position in the fulfillment lifecycle.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusPaymentFailed  Status = "payment_failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ErrInvalidTransition is returned for status changes outside the lifecycle
// graph. The order is left untouched and no event is broadcast.
var ErrInvalidTransition = errors.New("invalid order status transition")

// ErrNotFound is returned when an order id has no projection.
var ErrNotFound = errors.New("order not found")

// transitions is the allowed lifecycle graph. Delivered and cancelled are
// terminal. An order being prepared (ready) cannot be cancelled, but one out
// for delivery still can. A failed payment can be retried into confirmed or
// given up into cancelled.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled, StatusPaymentFailed},
	StatusConfirmed:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	StatusDelivered:      {},
	StatusCancelled:      {},
	StatusPaymentFailed:  {StatusConfirmed, StatusCancelled},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to, returning ErrInvalidTransition otherwise.
func Transition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Cancellable reports whether an order in status s may still be cancelled.
func Cancellable(s Status) bool { return CanTransition(s, StatusCancelled) }

// Order is the pipeline projection of a storefront order.
type Order struct {
	ID            int64  `json:"id"`
	Status        Status `json:"status"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	TotalCents    int64  `json:"totalCents,omitempty"`
	CreatedAtMs   int64  `json:"createdAtMs"`
	UpdatedAtMs   int64  `json:"updatedAtMs"`

	// Per-status timestamps, set once on first entry to the status.
	ConfirmedAtMs      int64 `json:"confirmedAtMs,omitempty"`
	ReadyAtMs          int64 `json:"readyAtMs,omitempty"`
	OutForDeliveryAtMs int64 `json:"outForDeliveryAtMs,omitempty"`
	DeliveredAtMs      int64 `json:"deliveredAtMs,omitempty"`
	CancelledAtMs      int64 `json:"cancelledAtMs,omitempty"`
}

// stamp records entry into a status.
func (o *Order) stamp(s Status, nowMs int64) {
	switch s {
	case StatusConfirmed:
		if o.ConfirmedAtMs == 0 {
			o.ConfirmedAtMs = nowMs
		}
	case StatusReady:
		if o.ReadyAtMs == 0 {
			o.ReadyAtMs = nowMs
		}
	case StatusOutForDelivery:
		if o.OutForDeliveryAtMs == 0 {
			o.OutForDeliveryAtMs = nowMs
		}
	case StatusDelivered:
		if o.DeliveredAtMs == 0 {
			o.DeliveredAtMs = nowMs
		}
	case StatusCancelled:
		if o.CancelledAtMs == 0 {
			o.CancelledAtMs = nowMs
		}
	}
}

// Store persists order projections.
type Store interface {
	// Load returns the projection for id, or ErrNotFound.
	Load(id int64) (Order, error)
	// Put writes the projection, creating or replacing it.
	Put(o Order) error
	// UpdateStatus applies a validated transition and stamps the status
	// timestamp, returning the updated projection. ErrInvalidTransition if
	// the edge is not allowed.
	UpdateStatus(id int64, to Status, nowMs int64) (Order, error)
}
