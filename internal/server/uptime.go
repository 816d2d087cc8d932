package server

import (
	"net/http"
	"strconv"
)

const (
	defaultWindowHours = 24
	maxWindowHours     = 24 * 30
)

// handleUptime serves the availability record for one target over a
// trailing window. Reports are cached inside the engine, so polling
// dashboards do not hammer the check history.
func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rawID := q.Get("target_id")
	if rawID == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "target_id is required")
		return
	}
	targetID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || targetID < 1 {
		s.writeError(w, http.StatusUnprocessableEntity, "target_id must be a positive integer")
		return
	}

	windowHours, ok := queryInt(r, "window_hours", defaultWindowHours)
	if !ok || windowHours < 1 || windowHours > maxWindowHours {
		s.writeError(w, http.StatusUnprocessableEntity, "window_hours must be between 1 and 720")
		return
	}

	var slaOverride *int
	if raw := q.Get("sla_target_per_mille"); raw != "" {
		sla, err := strconv.Atoi(raw)
		if err != nil || sla < 0 || sla > 1000 {
			s.writeError(w, http.StatusUnprocessableEntity, "sla_target_per_mille must be between 0 and 1000")
			return
		}
		slaOverride = &sla
	}

	target, err := s.store.GetTarget(r.Context(), targetID)
	if err != nil {
		s.writeStoreError(w, err, "target not found")
		return
	}

	report, err := s.engine.Report(r.Context(), target, windowHours, slaOverride)
	if err != nil {
		s.logger.Error("uptime report failed", "target_id", targetID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
