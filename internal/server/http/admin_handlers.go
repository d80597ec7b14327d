package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fornolabs/expedite/internal/failure"
	"github.com/fornolabs/expedite/internal/message"
)

func maxParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("max"))
	return n
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	infos, err := s.svc.QueueStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": infos})
}

func (s *Server) handleDlqStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	infos, err := s.svc.DlqStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": infos})
}

type queueReq struct {
	Queue string `json:"queue"`
}

func (s *Server) queueAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req queueReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Queue == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := action(req.Queue); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	s.queueAction(w, r, func(name string) error { return s.svc.ClearQueue(r.Context(), name) })
}

func (s *Server) handlePauseQueue(w http.ResponseWriter, r *http.Request) {
	s.queueAction(w, r, s.svc.PauseQueue)
}

func (s *Server) handleResumeQueue(w http.ResponseWriter, r *http.Request) {
	s.queueAction(w, r, s.svc.ResumeQueue)
}

type scheduleReq struct {
	Queue        string          `json:"queue,omitempty"`
	Kind         string          `json:"kind"`
	Args         json.RawMessage `json:"args,omitempty"`
	DelaySeconds int             `json:"delaySeconds,omitempty"`
}

func (s *Server) handleScheduleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req scheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id, err := s.svc.ScheduleJob(r.Context(), req.Queue, message.Kind(req.Kind), req.Args,
		time.Duration(req.DelaySeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleScheduledJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobs, err := s.svc.ListScheduledJobs(maxParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := failure.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	recs, err := s.svc.ListFailedJobs(status, maxParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": recs})
}

type resolveReq struct {
	ID    string `json:"id"`
	Notes string `json:"notes,omitempty"`
}

func (s *Server) handleResolveFailure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req resolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec, err := s.svc.ResolveFailure(req.ID, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDlqMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("queue")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	items, err := s.svc.ListDlqMessages(name, maxParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": items})
}

type recoverReq struct {
	Queue string   `json:"queue"`
	IDs   []string `json:"ids"`
}

func (s *Server) handleDlqRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req recoverReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Queue == "" || len(req.IDs) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	moved, err := s.svc.RecoverFromDlq(r.Context(), req.Queue, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recovered": moved})
}
