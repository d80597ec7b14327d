package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fornolabs/expedite/internal/alert"
	"github.com/fornolabs/expedite/internal/broadcast"
	"github.com/fornolabs/expedite/internal/fault"
	"github.com/fornolabs/expedite/internal/message"
	"github.com/fornolabs/expedite/internal/order"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

func orderSnapshot(o order.Order) json.RawMessage {
	raw, _ := json.Marshal(o)
	return raw
}

func (d *Deps) broadcastOrder(eventType string, o order.Order) {
	if d.Hub == nil {
		return
	}
	d.Hub.Publish(broadcast.Event{Type: eventType, Order: orderSnapshot(o)})
}

func (d *Deps) enqueueEmail(ctx context.Context, m Email) {
	if d.Queue == nil || d.EmailQueue == "" {
		return
	}
	raw, _ := json.Marshal(m)
	if _, err := d.Queue.Enqueue(ctx, d.EmailQueue, raw, message.Attrs(message.KindEmailSend, 0, nil), 0); err != nil {
		d.logger().Warn("email follow-up enqueue failed", logpkg.Err(err))
	}
}

func (d *Deps) enqueuePush(ctx context.Context, p Push) {
	if d.Queue == nil || d.PushQueue == "" {
		return
	}
	raw, _ := json.Marshal(p)
	if _, err := d.Queue.Enqueue(ctx, d.PushQueue, raw, message.Attrs(message.KindPushSend, 0, nil), 0); err != nil {
		d.logger().Warn("push follow-up enqueue failed", logpkg.Err(err))
	}
}

// OrderCreate processes order_create: charge the payment, confirm the order,
// broadcast, and fan out confirmation email plus kitchen push.
type OrderCreate struct{ Deps *Deps }

type orderCreatePayload struct {
	OrderID int64 `json:"order_id"`
}

func (h OrderCreate) Process(ctx context.Context, env message.Envelope) error {
	var p orderCreatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.OrderID == 0 {
		return fault.New(fault.Fatal, fmt.Errorf("order_create payload: %w", errOrBad(err)))
	}
	d := h.Deps
	o, err := d.Orders.Load(p.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return fault.New(fault.Fatal, err)
		}
		return fault.New(fault.Transient, err)
	}
	// redelivery of an already-processed create is a no-op
	if o.Status != order.StatusPending && o.Status != order.StatusPaymentFailed {
		return nil
	}

	if err := d.Payments.Charge(ctx, o); err != nil {
		if errors.Is(err, ErrPaymentDeclined) {
			failed, uerr := d.Orders.UpdateStatus(o.ID, order.StatusPaymentFailed, 0)
			if uerr != nil {
				if errors.Is(uerr, order.ErrInvalidTransition) {
					// concurrent worker already moved the order; nothing to announce
					return nil
				}
				return fault.New(fault.Transient, uerr)
			}
			if d.Alerts != nil {
				d.Alerts.Emit(ctx, alert.Payload{
					AlertType: alert.TypePaymentFailure,
					Message:   fmt.Sprintf("payment declined for order %d", o.ID),
					Details:   map[string]any{"order_id": o.ID},
				})
			}
			d.broadcastOrder(broadcast.TypeOrderStatusUpdate, failed)
			return nil
		}
		return err // gateway classifies its own faults
	}

	confirmed, err := d.Orders.UpdateStatus(o.ID, order.StatusConfirmed, 0)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			// concurrent worker already confirmed it
			return nil
		}
		return fault.New(fault.Transient, err)
	}

	d.broadcastOrder(broadcast.TypeNewOrder, confirmed)
	d.enqueueEmail(ctx, Email{
		To:       confirmed.CustomerEmail,
		Subject:  fmt.Sprintf("Order #%d confirmed", confirmed.ID),
		Template: "order_confirmation",
		OrderID:  confirmed.ID,
	})
	d.enqueuePush(ctx, Push{
		Channel: "kitchen",
		Title:   "New order",
		Body:    fmt.Sprintf("Order #%d is paid and waiting", confirmed.ID),
		OrderID: confirmed.ID,
	})
	return nil
}

// OrderStatus processes order_status: a validated transition with per-status
// side effects.
type OrderStatus struct{ Deps *Deps }

type orderStatusPayload struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func (h OrderStatus) Process(ctx context.Context, env message.Envelope) error {
	var p orderStatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.OrderID == 0 || p.Status == "" {
		return fault.New(fault.Fatal, fmt.Errorf("order_status payload: %w", errOrBad(err)))
	}
	d := h.Deps
	to := order.Status(p.Status)

	current, err := d.Orders.Load(p.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return fault.New(fault.Fatal, err)
		}
		return fault.New(fault.Transient, err)
	}
	// redelivered transition that already happened
	if current.Status == to {
		return nil
	}

	o, err := d.Orders.UpdateStatus(p.OrderID, to, 0)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			return fault.New(fault.Fatal, err)
		}
		return fault.New(fault.Transient, err)
	}

	d.broadcastOrder(broadcast.TypeOrderStatusUpdate, o)
	switch to {
	case order.StatusReady:
		d.enqueuePush(ctx, Push{
			Channel: "delivery",
			Title:   "Order ready",
			Body:    fmt.Sprintf("Order #%d is ready for pickup", o.ID),
			OrderID: o.ID,
		})
	case order.StatusDelivered:
		d.enqueueEmail(ctx, Email{
			To:       o.CustomerEmail,
			Subject:  fmt.Sprintf("Order #%d delivered", o.ID),
			Template: "order_delivered",
			OrderID:  o.ID,
		})
	case order.StatusCancelled:
		d.enqueueEmail(ctx, Email{
			To:       o.CustomerEmail,
			Subject:  fmt.Sprintf("Order #%d cancelled", o.ID),
			Template: "order_cancelled",
			OrderID:  o.ID,
		})
	}
	return nil
}

// OrderCancel processes order_cancel: refund if charged, cancel, notify.
type OrderCancel struct{ Deps *Deps }

type orderCancelPayload struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

func (h OrderCancel) Process(ctx context.Context, env message.Envelope) error {
	var p orderCancelPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.OrderID == 0 {
		return fault.New(fault.Fatal, fmt.Errorf("order_cancel payload: %w", errOrBad(err)))
	}
	d := h.Deps
	o, err := d.Orders.Load(p.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return fault.New(fault.Fatal, err)
		}
		return fault.New(fault.Transient, err)
	}
	if o.Status == order.StatusCancelled {
		return nil
	}
	if !order.Cancellable(o.Status) {
		return fault.New(fault.Fatal, fmt.Errorf("order %d in %s cannot be cancelled: %w", o.ID, o.Status, order.ErrInvalidTransition))
	}

	// confirmed orders were charged; refund before cancelling
	if o.ConfirmedAtMs != 0 {
		if err := d.Payments.Refund(ctx, o); err != nil {
			return err
		}
	}
	cancelled, err := d.Orders.UpdateStatus(o.ID, order.StatusCancelled, 0)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			return nil
		}
		return fault.New(fault.Transient, err)
	}

	d.broadcastOrder(broadcast.TypeOrderStatusUpdate, cancelled)
	d.enqueueEmail(ctx, Email{
		To:       cancelled.CustomerEmail,
		Subject:  fmt.Sprintf("Order #%d cancelled", cancelled.ID),
		Template: "order_cancelled",
		OrderID:  cancelled.ID,
	})
	d.enqueuePush(ctx, Push{
		Channel: "kitchen",
		Title:   "Order cancelled",
		Body:    fmt.Sprintf("Stop preparing order #%d", cancelled.ID),
		OrderID: cancelled.ID,
	})
	return nil
}

func errOrBad(err error) error {
	if err != nil {
		return err
	}
	return errors.New("missing required fields")
}
