package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/checkpoint"
	"github.com/leadscout/leadscout/internal/runner"
	"github.com/leadscout/leadscout/internal/session"
)

type runRequest struct {
	Keywords []string `json:"keywords"`
	HoldMode bool     `json:"hold_mode"`
}

type resumeRequest struct {
	Token string `json:"token"`
	OTP   string `json:"otp"`
}

type remoteClickRequest struct {
	Token string  `json:"token"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type remoteTypeRequest struct {
	Token string `json:"token"`
	Text  string `json:"text"`
}

type remoteKeyRequest struct {
	Token string `json:"token"`
	Key   string `json:"key"`
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runner.Snapshot())
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	err := s.runner.Start(runner.Params{Keywords: req.Keywords, HoldMode: req.HoldMode})
	if err != nil {
		if errors.Is(err, runner.ErrAlreadyRunning) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) stopRun(w http.ResponseWriter, _ *http.Request) {
	if !s.runner.Stop() {
		s.writeError(w, http.StatusConflict, "no run in progress")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		s.writeError(w, http.StatusBadRequest, "token required")
		return
	}
	if err := s.machine.Resume(req.Token, req.OTP); err != nil {
		s.writeCheckpointError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resuming"})
}

func (s *Server) remoteClick(w http.ResponseWriter, r *http.Request) {
	var req remoteClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		s.writeError(w, http.StatusBadRequest, "token required")
		return
	}
	if err := s.machine.Click(r.Context(), req.Token, req.X, req.Y); err != nil {
		s.writeCheckpointError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) remoteType(w http.ResponseWriter, r *http.Request) {
	var req remoteTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		s.writeError(w, http.StatusBadRequest, "token required")
		return
	}
	if err := s.machine.Type(r.Context(), req.Token, req.Text); err != nil {
		s.writeCheckpointError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) remoteKey(w http.ResponseWriter, r *http.Request) {
	var req remoteKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		s.writeError(w, http.StatusBadRequest, "token required")
		return
	}
	key := session.Key(req.Key)
	if !session.ValidKey(key) {
		s.writeError(w, http.StatusBadRequest, "unsupported key")
		return
	}
	if err := s.machine.Key(r.Context(), req.Token, key); err != nil {
		s.writeCheckpointError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeCheckpointError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkpoint.ErrInvalidToken):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionGone):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("checkpoint interaction failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
