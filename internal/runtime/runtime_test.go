package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/fornolabs/expedite/internal/config"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
)

func TestOpenCheckHealthClose(t *testing.T) {
	rt, err := Open(Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Backend() == nil || rt.Orders() == nil || rt.Failures() == nil || rt.Hub() == nil {
		t.Fatalf("components missing")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Queues[0].DLQName = cfg.Queues[0].Name
	if _, err := Open(Options{DataDir: t.TempDir(), Config: cfg}); err == nil {
		t.Fatalf("invalid config accepted")
	}
}
