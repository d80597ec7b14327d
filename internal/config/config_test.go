package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if _, ok := cfg.Lookup("orders"); !ok {
		t.Fatalf("orders queue missing from defaults")
	}
	if q, ok := cfg.Lookup("orders-dlq"); !ok || q.Name != "orders" {
		t.Fatalf("dlq lookup should resolve to owning queue")
	}
}

func TestLoadJSONOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expedite.json")
	body := `{"receiveWaitSeconds": 5, "retry": {"baseSeconds": 10, "capSeconds": 100}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ReceiveWaitSeconds != 5 || cfg.Retry.BaseSeconds != 10 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	// untouched defaults survive
	if len(cfg.Queues) == 0 {
		t.Fatalf("queue defaults lost on overlay")
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(path, []byte("{"), 0o600)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("EXPEDITE_RECEIVE_WAIT_SECONDS", "3")
	t.Setenv("EXPEDITE_RETRY_CAP_SECONDS", "120")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.ReceiveWaitSeconds != 3 || cfg.Retry.CapSeconds != 120 {
		t.Fatalf("env overlay not applied: %+v", cfg)
	}
}

func TestValidateRejections(t *testing.T) {
	base := Default()

	dupDLQ := base
	dupDLQ.Queues = append([]QueueConfig(nil), base.Queues...)
	dupDLQ.Queues[1].DLQName = base.Queues[0].DLQName
	if err := dupDLQ.Validate(); err == nil {
		t.Fatalf("duplicate dlq name should fail validation")
	}

	zeroReceive := base
	zeroReceive.Queues = append([]QueueConfig(nil), base.Queues...)
	zeroReceive.Queues[0].MaxReceiveCount = 0
	if err := zeroReceive.Validate(); err == nil {
		t.Fatalf("maxReceiveCount=0 should fail validation")
	}

	sameDLQ := base
	sameDLQ.Queues = append([]QueueConfig(nil), base.Queues...)
	sameDLQ.Queues[0].DLQName = sameDLQ.Queues[0].Name
	if err := sameDLQ.Validate(); err == nil {
		t.Fatalf("dlqName == name should fail validation")
	}
}
