// Package message defines the envelope that travels through the queues and
// the closed set of job kinds the dispatcher routes on.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies the handler a message is routed to.
type Kind string

const (
	KindOrderCreate     Kind = "order_create"
	KindOrderStatus     Kind = "order_status"
	KindOrderCancel     Kind = "order_cancel"
	KindEmailSend       Kind = "email_send"
	KindPushSend        Kind = "push_send"
	KindAnalyticsIngest Kind = "analytics_ingest"
	KindAdminEmail      Kind = "admin_email"
)

var kinds = map[Kind]struct{}{
	KindOrderCreate:     {},
	KindOrderStatus:     {},
	KindOrderCancel:     {},
	KindEmailSend:       {},
	KindPushSend:        {},
	KindAnalyticsIngest: {},
	KindAdminEmail:      {},
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Kinds returns every known kind. Used to validate handler registries at
// startup.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	return out
}

// Attribute names carried alongside the payload.
const (
	attrKind  = "kind"
	attrRetry = "retryCount"
)

// ErrBadEnvelope is returned when a queued message cannot be decoded into an
// Envelope. Such messages go straight to the dead-letter queue.
var ErrBadEnvelope = errors.New("malformed message envelope")

// Envelope is a decoded queue message. RetryCount is the scheduler's own
// counter; ReceiveCount is the backend's delivery count including lease
// expirations.
type Envelope struct {
	ID            string
	Queue         string
	Kind          Kind
	Payload       json.RawMessage
	Attributes    map[string]string
	ReceiptHandle string
	RetryCount    int
	ReceiveCount  int
}

// Attrs builds the attribute map for enqueueing an envelope of this kind and
// retry count. Extra attributes are preserved on top.
func Attrs(kind Kind, retryCount int, extra map[string]string) map[string]string {
	out := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		out[k] = v
	}
	out[attrKind] = string(kind)
	out[attrRetry] = strconv.Itoa(retryCount)
	return out
}

// Decode interprets a raw queue message as an Envelope. The kind attribute
// must name a known Kind and the retry count, when present, must be a
// non-negative integer.
func Decode(id, queue string, body []byte, attrs map[string]string, receipt string, receiveCount int) (Envelope, error) {
	kind := Kind(attrs[attrKind])
	if !kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrBadEnvelope, attrs[attrKind])
	}
	retry := 0
	if raw, ok := attrs[attrRetry]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Envelope{}, fmt.Errorf("%w: retry count %q", ErrBadEnvelope, raw)
		}
		retry = n
	}
	return Envelope{
		ID:            id,
		Queue:         queue,
		Kind:          kind,
		Payload:       json.RawMessage(body),
		Attributes:    attrs,
		ReceiptHandle: receipt,
		RetryCount:    retry,
		ReceiveCount:  receiveCount,
	}, nil
}
