package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

// engineOp runs one engine operation and maps a refusal to 409. Engine
// operations fail only when the session is not in a state that accepts them.
func (s *Server) engineOp(w http.ResponseWriter, ok bool, refusal string) {
	if !ok {
		writeError(w, http.StatusConflict, "conflict", refusal)
		return
	}
	writeJSON(w, http.StatusOK, s.coordinator.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engineOp(w, s.engine.Pause(r.Context()), "no running routine to pause")
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engineOp(w, s.engine.Resume(r.Context()), "no paused routine to resume")
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.engineOp(w, s.engine.SkipTask(r.Context()), "no active routine")
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.engineOp(w, s.engine.CompleteTask(r.Context()), "task cannot be completed manually")
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.engineOp(w, s.engine.Confirm(r.Context()), "no confirm window active")
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}
	s.engineOp(w, s.engine.Snooze(r.Context(), req.Seconds), "no confirm window active")
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.engineOp(w, s.engine.Cancel(r.Context()), "no active routine to cancel")
}

func (s *Server) handleAdjustTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Seconds == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "seconds must be non-zero")
		return
	}
	s.engineOp(w, s.engine.AdjustTaskTime(r.Context(), req.Seconds), "no active routine")
}
