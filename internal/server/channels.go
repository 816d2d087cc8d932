package server

import (
	"encoding/json"
	"net/http"

	"github.com/upmon/upmon/internal/monitor"
)

// channelPayload creates a notification channel. Config keys depend on the
// type: telegram reads chat_id and parse_mode, falling back to the process
// environment for anything missing.
type channelPayload struct {
	Type     string            `json:"type" validate:"required,oneof=telegram log"`
	Config   map[string]string `json:"config"`
	IsActive *bool             `json:"is_active"`
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		s.writeStoreError(w, err, "")
		return
	}
	if channels == nil {
		channels = []monitor.NotificationChannel{}
	}
	s.writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var p channelPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	ch := monitor.NotificationChannel{
		Type:     monitor.ChannelType(p.Type),
		Config:   p.Config,
		IsActive: true,
	}
	if p.IsActive != nil {
		ch.IsActive = *p.IsActive
	}

	created, err := s.store.CreateChannel(r.Context(), ch)
	if err != nil {
		s.writeStoreError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "channelID")
	if !ok {
		s.writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err := s.store.DeleteChannel(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "channel not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
