package server

import (
	"context"
	"net/http"
	"time"
)

// handleHealth reports service and database health. The store ping runs
// under a 2s deadline; a failed ping yields 503 so load balancers pull the
// instance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		Status    string `json:"status"`
		Database  string `json:"database"`
		Timestamp string `json:"timestamp"`
		Error     string `json:"error,omitempty"`
	}

	out := resp{
		Status:    "ok",
		Database:  "connected",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		out.Status = "error"
		out.Database = "disconnected"
		out.Error = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, out)
		return
	}

	s.writeJSON(w, http.StatusOK, out)
}
