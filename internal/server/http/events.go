package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/fornolabs/expedite/internal/broadcast"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// handleEventsSSE streams broadcast events as server-sent events. An optional
// ?filter= CEL expression selects events; a subscriber that falls behind the
// hub buffer silently loses events.
func (s *Server) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := broadcast.NewFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	sub := s.hub.Subscribe(broadcast.SubscribeOptions{Filter: filter})
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("event encode failed", logpkg.Err(err))
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(raw); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
