package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/command"
	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/session"
	"github.com/hmflow/gprs-puller/pkg/hmframe"
)

// HandleListSessions lists live device sessions
func (s *RESTServer) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	infos := make([]session.Info, 0, len(list))
	for _, sess := range list {
		infos = append(infos, sess.Info())
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": infos,
		"total":    len(infos),
	})
}

// HandleGetSession gets one live session
func (s *RESTServer) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "port_id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}

	s.respondJSON(w, http.StatusOK, sess.Info())
}

// HandleCloseSession disconnects a device
func (s *RESTServer) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	portID := chi.URLParam(r, "port_id")
	sess, ok := s.sessions.Get(portID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}

	log.Info().Str("port_id", portID).Str("operator", operator(r)).Msg("Closing session on request")
	sess.Close(session.ReasonClosed)

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetMode switches the polling mode of a live session
func (s *RESTServer) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode  string    `json:"mode" validate:"required,oneof=R C H realtime command history"`
		Start time.Time `json:"start"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode, err := models.ParseCollectMode(req.Mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	portID := chi.URLParam(r, "port_id")
	if err := s.dispatcher.SetMode(portID, mode, req.Start); err != nil {
		s.respondDispatchError(w, err)
		return
	}

	log.Info().
		Str("port_id", portID).
		Str("mode", mode.String()).
		Str("operator", operator(r)).
		Msg("Mode switch requested")

	sess, ok := s.sessions.Get(portID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondJSON(w, http.StatusOK, sess.Info())
}

// HandleQueueCommand queues a read command for a live session
func (s *RESTServer) HandleQueueCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DataType  hmframe.DataType `json:"dataType" validate:"max=4"`
		Interval  int              `json:"interval" validate:"oneof=1 10 60"`
		Timestamp time.Time        `json:"timestamp"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cmd := &models.Command{
		PortID:    chi.URLParam(r, "port_id"),
		DataType:  req.DataType,
		Interval:  req.Interval,
		Timestamp: req.Timestamp,
	}
	if err := s.dispatcher.Submit(cmd); err != nil {
		s.respondDispatchError(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, cmd)
}

// HandleListCommands lists commands waiting for a device
func (s *RESTServer) HandleListCommands(w http.ResponseWriter, r *http.Request) {
	pending := s.dispatcher.Queue().Pending(chi.URLParam(r, "port_id"))

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"commands": pending,
		"total":    len(pending),
	})
}

// HandleClearCommands drops every pending command for a device
func (s *RESTServer) HandleClearCommands(w http.ResponseWriter, r *http.Request) {
	n := s.dispatcher.Queue().Clear(chi.URLParam(r, "port_id"))

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": n,
	})
}

func (s *RESTServer) respondDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, command.ErrNoSession):
		s.respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, command.ErrQueueFull):
		s.respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, command.ErrInvalidCommand), errors.Is(err, session.ErrInvalidMode):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
