package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/settings"
)

type recordView struct {
	Fingerprint lead.Fingerprint      `json:"fingerprint"`
	CreatedAt   time.Time             `json:"created_at"`
	Payload     *lead.DeliveryPayload `json:"payload,omitempty"`
}

type purgeRequest struct {
	IDs           []string `json:"ids"`
	OlderThanDays int      `json:"older_than_days"`
	Contact       string   `json:"contact"`
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		view := recordView{Fingerprint: rec.Fingerprint, CreatedAt: rec.CreatedAt}
		if len(rec.Payload) > 0 {
			if payload, err := lead.DecodePayload(rec.Payload); err == nil {
				view.Payload = &payload
			}
		}
		views = append(views, view)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": views, "count": len(views)})
}

// purgeRecords removes delivery records by explicit ids, age or contact. A
// table backup is taken before anything is deleted.
func (s *Server) purgeRecords(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	selectors := 0
	if len(req.IDs) > 0 {
		selectors++
	}
	if req.OlderThanDays > 0 {
		selectors++
	}
	if req.Contact != "" {
		selectors++
	}
	if selectors != 1 {
		s.writeError(w, http.StatusBadRequest, "exactly one of ids, older_than_days or contact is required")
		return
	}

	backup, err := s.store.Backup(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var removed int64
	switch {
	case len(req.IDs) > 0:
		fps := make([]lead.Fingerprint, len(req.IDs))
		for i, id := range req.IDs {
			fps[i] = lead.Fingerprint(id)
		}
		removed, err = s.store.RemoveMany(r.Context(), fps)
	case req.OlderThanDays > 0:
		cutoff := time.Now().UTC().AddDate(0, 0, -req.OlderThanDays)
		removed, err = s.store.RemoveOlderThan(r.Context(), cutoff)
	default:
		removed, err = s.store.RemoveByContact(r.Context(), req.Contact)
	}
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.logger.Info("delivery records purged",
		zap.Int64("removed", removed),
		zap.String("backup", backup),
	)
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "backup": backup})
}

func (s *Server) listSenders(w http.ResponseWriter, r *http.Request) {
	pool, err := s.senders.Senders(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	masked := make([]lead.Credential, len(pool))
	for i, cred := range pool {
		masked[i] = cred.Masked()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"senders": masked})
}

func (s *Server) addSender(w http.ResponseWriter, r *http.Request) {
	var cred lead.Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.senders.Add(r.Context(), cred); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"sender": cred.Masked()})
}

func (s *Server) removeSender(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	removed, err := s.senders.Remove(r.Context(), identity)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "sender not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.GetAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	// Credentials are managed through the senders routes and stay hidden here.
	delete(all, settings.KeySenders)
	s.writeJSON(w, http.StatusOK, map[string]any{"settings": all})
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil || len(values) == 0 {
		s.writeError(w, http.StatusBadRequest, "settings object required")
		return
	}
	if _, ok := values[settings.KeySenders]; ok {
		s.writeError(w, http.StatusBadRequest, "senders are managed via /v1/admin/senders")
		return
	}
	for key, value := range values {
		if err := s.settings.Set(r.Context(), key, value); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"updated": len(values)})
}
