// Package httpserver exposes the admin surface and the SSE event stream over
// plain HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fornolabs/expedite/internal/admin"
	"github.com/fornolabs/expedite/internal/broadcast"
	"github.com/fornolabs/expedite/internal/failure"
	"github.com/fornolabs/expedite/internal/order"
	"github.com/fornolabs/expedite/internal/queue"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

type Server struct {
	svc    *admin.Service
	hub    *broadcast.Hub
	logger logpkg.Logger
	srv    *http.Server
	lis    net.Listener
}

func New(svc *admin.Service, hub *broadcast.Hub, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	mux := http.NewServeMux()
	s := &Server{
		svc:    svc,
		hub:    hub,
		logger: logger.With(logpkg.Component("http")),
		srv:    &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/queues/stats", s.handleQueueStats)
	mux.HandleFunc("/v1/queues/dlq/stats", s.handleDlqStats)
	mux.HandleFunc("/v1/queues/clear", s.handleClearQueue)
	mux.HandleFunc("/v1/queues/pause", s.handlePauseQueue)
	mux.HandleFunc("/v1/queues/resume", s.handleResumeQueue)
	mux.HandleFunc("/v1/jobs/schedule", s.handleScheduleJob)
	mux.HandleFunc("/v1/jobs/scheduled", s.handleScheduledJobs)
	mux.HandleFunc("/v1/failures", s.handleListFailures)
	mux.HandleFunc("/v1/failures/resolve", s.handleResolveFailure)
	mux.HandleFunc("/v1/dlq/messages", s.handleDlqMessages)
	mux.HandleFunc("/v1/dlq/recover", s.handleDlqRecover)
	mux.HandleFunc("/v1/events/subscribe", s.handleEventsSSE)
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, queue.ErrUnknownQueue),
		errors.Is(err, failure.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, failure.ErrAlreadyResolved),
		errors.Is(err, order.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, queue.ErrInvalidReceipt):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
