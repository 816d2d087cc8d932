package server

import (
	"net/http"

	"github.com/upmon/upmon/internal/monitor"
)

const (
	defaultCheckLimit = 20
	maxCheckLimit     = 500
)

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "targetID")
	if !ok {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}
	limit, ok := queryInt(r, "limit", defaultCheckLimit)
	if !ok || limit < 1 {
		s.writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxCheckLimit)

	if _, err := s.store.GetTarget(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "target not found")
		return
	}

	checks, err := s.store.ListChecks(r.Context(), id, limit)
	if err != nil {
		s.writeStoreError(w, err, "")
		return
	}
	if checks == nil {
		checks = []monitor.CheckResult{}
	}
	s.writeJSON(w, http.StatusOK, checks)
}

func (s *Server) handleLatestCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "targetID")
	if !ok {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if _, err := s.store.GetTarget(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "target not found")
		return
	}

	check, err := s.store.LatestCheck(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "no checks recorded for target")
		return
	}
	s.writeJSON(w, http.StatusOK, check)
}
