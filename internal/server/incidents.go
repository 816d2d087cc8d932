package server

import (
	"net/http"
	"strconv"

	"github.com/upmon/upmon/internal/monitor"
)

const (
	defaultIncidentLimit = 100
	maxIncidentLimit     = 500
)

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var targetID *int64
	if raw := q.Get("target_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			s.writeError(w, http.StatusUnprocessableEntity, "target_id must be a positive integer")
			return
		}
		targetID = &id
	}

	var resolved *bool
	if raw := q.Get("resolved"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusUnprocessableEntity, "resolved must be true or false")
			return
		}
		resolved = &b
	}

	limit, ok := queryInt(r, "limit", defaultIncidentLimit)
	if !ok || limit < 1 {
		s.writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxIncidentLimit)

	incidents, err := s.store.ListIncidents(r.Context(), targetID, resolved, limit)
	if err != nil {
		s.writeStoreError(w, err, "")
		return
	}
	if incidents == nil {
		incidents = []monitor.Incident{}
	}
	s.writeJSON(w, http.StatusOK, incidents)
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "incidentID")
	if !ok {
		s.writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	inc, err := s.store.GetIncident(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "incident not found")
		return
	}
	s.writeJSON(w, http.StatusOK, inc)
}
