package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newStubAPI(t *testing.T) (BaseURLFunc, *map[string]string) {
	t.Helper()
	calls := map[string]string{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/queues/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"queues": []map[string]any{{"queue": "orders"}}})
	})
	mux.HandleFunc("/v1/queues/pause", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls["pause"] = req["queue"]
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/queues/clear", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls["clear"] = req["queue"]
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/jobs/schedule", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls["kind"], _ = req["kind"].(string)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "abc123"})
	})
	mux.HandleFunc("/v1/failures", func(w http.ResponseWriter, r *http.Request) {
		calls["status"] = r.URL.Query().Get("status")
		_ = json.NewEncoder(w).Encode(map[string]any{"failures": []any{}})
	})
	mux.HandleFunc("/v1/failures/resolve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return func() string { return srv.URL }, &calls
}

func TestQueueStatsCommand(t *testing.T) {
	baseURL, _ := newStubAPI(t)
	out, err := runCommand(t, NewQueueCommand(baseURL), "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "orders") {
		t.Fatalf("output: %q", out)
	}
}

func TestQueuePauseCommand(t *testing.T) {
	baseURL, calls := newStubAPI(t)
	if _, err := runCommand(t, NewQueueCommand(baseURL), "pause", "--queue", "orders"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if (*calls)["pause"] != "orders" {
		t.Fatalf("pause not sent: %v", *calls)
	}
	if _, err := runCommand(t, NewQueueCommand(baseURL), "pause"); err == nil {
		t.Fatal("missing queue accepted")
	}
}

func TestQueueClearRequiresConfirm(t *testing.T) {
	baseURL, calls := newStubAPI(t)
	if _, err := runCommand(t, NewQueueCommand(baseURL), "clear", "--queue", "orders"); err == nil {
		t.Fatal("clear without --confirm accepted")
	}
	if (*calls)["clear"] != "" {
		t.Fatal("clear sent without confirmation")
	}
	if _, err := runCommand(t, NewQueueCommand(baseURL), "clear", "--queue", "orders", "--confirm"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if (*calls)["clear"] != "orders" {
		t.Fatalf("clear not sent: %v", *calls)
	}
}

func TestJobScheduleCommand(t *testing.T) {
	baseURL, calls := newStubAPI(t)
	out, err := runCommand(t, NewJobCommand(baseURL),
		"schedule", "--kind", "email_send", "--args", `{"to":"a@b.c"}`, "--delay-seconds", "60")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if (*calls)["kind"] != "email_send" || !strings.Contains(out, "abc123") {
		t.Fatalf("schedule: calls=%v out=%q", *calls, out)
	}

	if _, err := runCommand(t, NewJobCommand(baseURL), "schedule", "--kind", "email_send", "--args", "{oops"); err == nil {
		t.Fatal("bad args accepted")
	}
}

func TestFailureCommands(t *testing.T) {
	baseURL, calls := newStubAPI(t)
	if _, err := runCommand(t, NewFailureCommand(baseURL), "list", "--status", "pending"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if (*calls)["status"] != "pending" {
		t.Fatalf("status filter not sent: %v", *calls)
	}

	_, err := runCommand(t, NewFailureCommand(baseURL), "resolve", "--id", "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("resolve error: %v", err)
	}
}
