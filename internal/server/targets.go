package server

import (
	"encoding/json"
	"net/http"

	"github.com/upmon/upmon/internal/monitor"
)

// targetPayload is the create body. The probing knobs are mandatory so a
// target's behavior is always explicit; sla_target and is_active carry
// defaults. Zero is a valid retry_count and backoff, hence the pointers.
type targetPayload struct {
	Name             string `json:"name" validate:"required,max=255"`
	URL              string `json:"url" validate:"required,http_url,max=2048"`
	CheckIntervalSec int    `json:"check_interval_sec" validate:"required,min=1"`
	TimeoutMS        int    `json:"timeout_ms" validate:"required,min=1"`
	RetryCount       *int   `json:"retry_count" validate:"required,min=0"`
	RetryBackoffMS   *int   `json:"retry_backoff_ms" validate:"required,min=0"`
	SLATarget        *int   `json:"sla_target" validate:"omitempty,min=0,max=1000"`
	IsActive         *bool  `json:"is_active"`
}

// targetUpdatePayload is the partial update body; nil fields keep their
// current value.
type targetUpdatePayload struct {
	Name             *string `json:"name" validate:"omitempty,max=255"`
	URL              *string `json:"url" validate:"omitempty,http_url,max=2048"`
	CheckIntervalSec *int    `json:"check_interval_sec" validate:"omitempty,min=1"`
	TimeoutMS        *int    `json:"timeout_ms" validate:"omitempty,min=1"`
	RetryCount       *int    `json:"retry_count" validate:"omitempty,min=0"`
	RetryBackoffMS   *int    `json:"retry_backoff_ms" validate:"omitempty,min=0"`
	SLATarget        *int    `json:"sla_target" validate:"omitempty,min=0,max=1000"`
	IsActive         *bool   `json:"is_active"`
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("only_active") == "true"
	targets, err := s.store.ListTargets(r.Context(), onlyActive)
	if err != nil {
		s.writeStoreError(w, err, "")
		return
	}
	if targets == nil {
		targets = []monitor.Target{}
	}
	s.writeJSON(w, http.StatusOK, targets)
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var p targetPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	t := monitor.Target{
		Name:             p.Name,
		URL:              p.URL,
		CheckIntervalSec: p.CheckIntervalSec,
		TimeoutMS:        p.TimeoutMS,
		RetryCount:       *p.RetryCount,
		RetryBackoffMS:   *p.RetryBackoffMS,
		SLATarget:        999,
		IsActive:         true,
	}
	if p.SLATarget != nil {
		t.SLATarget = *p.SLATarget
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}

	created, err := s.store.CreateTarget(r.Context(), t)
	if err != nil {
		s.writeStoreError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "targetID")
	if !ok {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}
	t, err := s.store.GetTarget(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "target not found")
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "targetID")
	if !ok {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}

	var p targetUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	t, err := s.store.GetTarget(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "target not found")
		return
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.URL != nil {
		t.URL = *p.URL
	}
	if p.CheckIntervalSec != nil {
		t.CheckIntervalSec = *p.CheckIntervalSec
	}
	if p.TimeoutMS != nil {
		t.TimeoutMS = *p.TimeoutMS
	}
	if p.RetryCount != nil {
		t.RetryCount = *p.RetryCount
	}
	if p.RetryBackoffMS != nil {
		t.RetryBackoffMS = *p.RetryBackoffMS
	}
	if p.SLATarget != nil {
		t.SLATarget = *p.SLATarget
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}

	updated, err := s.store.UpdateTarget(r.Context(), t)
	if err != nil {
		s.writeStoreError(w, err, "target not found")
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "targetID")
	if !ok {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if err := s.store.DeleteTarget(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "target not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
