package dispatch

import (
	"context"
	"fmt"

	"github.com/fornolabs/expedite/internal/message"
)

// Handler processes one decoded envelope. Returned errors carry a fault kind;
// unclassified errors are treated as transient.
type Handler interface {
	Process(ctx context.Context, env message.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env message.Envelope) error

func (f HandlerFunc) Process(ctx context.Context, env message.Envelope) error { return f(ctx, env) }

// Registry maps message kinds to handlers. It is built during startup and
// read-only afterwards; Validate runs before any worker loop starts so a
// deployment with a missing handler never consumes a message.
type Registry struct {
	handlers map[message.Kind]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[message.Kind]Handler)}
}

// Register binds kind to h, replacing any previous binding.
func (r *Registry) Register(kind message.Kind, h Handler) *Registry {
	r.handlers[kind] = h
	return r
}

// Lookup returns the handler for kind.
func (r *Registry) Lookup(kind message.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Validate checks that every kind has a handler and every registration names
// a known kind.
func (r *Registry) Validate(kinds []message.Kind) error {
	for _, k := range kinds {
		if _, ok := r.handlers[k]; !ok {
			return fmt.Errorf("registry: no handler for kind %q", k)
		}
	}
	for k := range r.handlers {
		if !k.Valid() {
			return fmt.Errorf("registry: handler registered for unknown kind %q", k)
		}
	}
	return nil
}
