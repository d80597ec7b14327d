package message

import (
	"errors"
	"testing"
)

func TestDecodeValid(t *testing.T) {
	attrs := Attrs(KindOrderCreate, 2, map[string]string{"source": "api"})
	env, err := Decode("m1", "orders", []byte(`{"order_id":42}`), attrs, "r1", 3)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Kind != KindOrderCreate || env.RetryCount != 2 || env.ReceiveCount != 3 {
		t.Fatalf("envelope mismatch: %+v", env)
	}
	if env.Attributes["source"] != "api" {
		t.Fatalf("extra attribute lost")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode("m1", "orders", nil, map[string]string{"kind": "mystery"}, "r1", 1)
	if !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("want ErrBadEnvelope, got %v", err)
	}
}

func TestDecodeMissingKind(t *testing.T) {
	_, err := Decode("m1", "orders", nil, map[string]string{}, "r1", 1)
	if !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("want ErrBadEnvelope, got %v", err)
	}
}

func TestDecodeBadRetryCount(t *testing.T) {
	for _, raw := range []string{"x", "-1", "1.5"} {
		attrs := map[string]string{"kind": "email_send", "retryCount": raw}
		if _, err := Decode("m1", "emails", nil, attrs, "r1", 1); !errors.Is(err, ErrBadEnvelope) {
			t.Fatalf("retryCount=%q: want ErrBadEnvelope, got %v", raw, err)
		}
	}
}

func TestKindsCoverEnum(t *testing.T) {
	all := Kinds()
	if len(all) != 7 {
		t.Fatalf("want 7 kinds, got %d", len(all))
	}
	for _, k := range all {
		if !k.Valid() {
			t.Fatalf("kind %q not valid", k)
		}
	}
}
