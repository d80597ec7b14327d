// Package handlers implements the per-kind job processors the dispatcher
// routes to. Every handler is idempotent: lease expiry means any job can be
// delivered more than once.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/fornolabs/expedite/internal/alert"
	"github.com/fornolabs/expedite/internal/broadcast"
	"github.com/fornolabs/expedite/internal/order"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// ErrPaymentDeclined is a gateway decline: not an infrastructure fault, the
// order moves to payment_failed instead of retrying.
var ErrPaymentDeclined = errors.New("payment declined")

// PaymentGateway charges and refunds orders. Implementations return
// ErrPaymentDeclined for declines and fault-classified errors otherwise.
type PaymentGateway interface {
	Charge(ctx context.Context, o order.Order) error
	Refund(ctx context.Context, o order.Order) error
}

// Email is one outbound mail.
type Email struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Template string `json:"template"`
	OrderID  int64  `json:"orderId,omitempty"`
}

// EmailSender delivers mail. Unavailability should be a transient fault.
type EmailSender interface {
	Send(ctx context.Context, m Email) error
}

// Push is one push notification.
type Push struct {
	Channel string `json:"channel"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	OrderID int64  `json:"orderId,omitempty"`
}

// PushSender delivers push notifications.
type PushSender interface {
	Send(ctx context.Context, p Push) error
}

// Enqueuer is the slice of the queue backend handlers use for follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, body []byte, attrs map[string]string, delay time.Duration) (string, error)
}

// Deps carries everything the handler set needs.
type Deps struct {
	Orders    order.Store
	Hub       *broadcast.Hub
	Queue     Enqueuer
	Payments  PaymentGateway
	Email     EmailSender
	Push      PushSender
	Analytics *AnalyticsStore
	Alerts    *alert.Emitter
	Logger    logpkg.Logger

	// EmailQueue and PushQueue name the follow-up queues.
	EmailQueue string
	PushQueue  string
}

func (d *Deps) logger() logpkg.Logger {
	if d.Logger == nil {
		d.Logger = logpkg.NewNop()
	}
	return d.Logger
}

// logEmailSender is the default EmailSender: it logs the send. Real SMTP
// wiring replaces it in production config.
type logEmailSender struct{ lg logpkg.Logger }

// NewLogEmailSender returns an EmailSender that only logs.
func NewLogEmailSender(lg logpkg.Logger) EmailSender {
	if lg == nil {
		lg = logpkg.NewNop()
	}
	return logEmailSender{lg: lg.With(logpkg.Component("email"))}
}

func (s logEmailSender) Send(_ context.Context, m Email) error {
	s.lg.Info("email sent", logpkg.Str("to", m.To), logpkg.Str("template", m.Template))
	return nil
}

type logPushSender struct{ lg logpkg.Logger }

// NewLogPushSender returns a PushSender that only logs.
func NewLogPushSender(lg logpkg.Logger) PushSender {
	if lg == nil {
		lg = logpkg.NewNop()
	}
	return logPushSender{lg: lg.With(logpkg.Component("push"))}
}

func (s logPushSender) Send(_ context.Context, p Push) error {
	s.lg.Info("push sent", logpkg.Str("channel", p.Channel), logpkg.Str("title", p.Title))
	return nil
}

// approvingGateway is the default PaymentGateway: every charge succeeds.
type approvingGateway struct{}

// NewApprovingGateway returns a gateway that approves everything.
func NewApprovingGateway() PaymentGateway { return approvingGateway{} }

func (approvingGateway) Charge(context.Context, order.Order) error { return nil }
func (approvingGateway) Refund(context.Context, order.Order) error { return nil }
