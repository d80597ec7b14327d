package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fornolabs/expedite/internal/fault"
	"github.com/fornolabs/expedite/internal/message"
)

// EmailSend processes email_send jobs.
type EmailSend struct{ Deps *Deps }

func (h EmailSend) Process(ctx context.Context, env message.Envelope) error {
	var m Email
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		return fault.New(fault.Fatal, fmt.Errorf("email_send payload: %w", err))
	}
	if m.To == "" {
		return fault.New(fault.Fatal, fmt.Errorf("email_send: empty recipient"))
	}
	return h.Deps.Email.Send(ctx, m)
}

// PushSend processes push_send jobs.
type PushSend struct{ Deps *Deps }

func (h PushSend) Process(ctx context.Context, env message.Envelope) error {
	var p Push
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fault.New(fault.Fatal, fmt.Errorf("push_send payload: %w", err))
	}
	if p.Channel == "" {
		return fault.New(fault.Fatal, fmt.Errorf("push_send: empty channel"))
	}
	return h.Deps.Push.Send(ctx, p)
}

// AdminEmail processes admin_email jobs carrying serialized alert payloads.
type AdminEmail struct {
	Deps *Deps
	// Recipient is the operator address alerts are mailed to.
	Recipient string
}

func (h AdminEmail) Process(ctx context.Context, env message.Envelope) error {
	alertType := env.Attributes["alertType"]
	if alertType == "" {
		alertType = "alert"
	}
	to := h.Recipient
	if to == "" {
		to = "ops@localhost"
	}
	return h.Deps.Email.Send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("[expedite] %s", alertType),
		Template: "admin_alert",
	})
}
