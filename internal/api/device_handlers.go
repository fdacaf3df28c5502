package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/storage"
)

// HandleListDevices lists devices
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	devices, total, err := s.store.ListDevices(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// lookupDevice resolves {id} as a device uuid or a port id
func (s *RESTServer) lookupDevice(r *http.Request) (*models.Device, error) {
	ref := chi.URLParam(r, "id")
	if id, err := uuid.Parse(ref); err == nil {
		return s.store.GetDevice(r.Context(), id)
	}
	return s.store.GetDeviceByPortID(r.Context(), ref)
}

// HandleGetDevice gets a device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.lookupDevice(r)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleListTelemetry lists stored readings of a device, newest first
func (s *RESTServer) HandleListTelemetry(w http.ResponseWriter, r *http.Request) {
	device, err := s.lookupDevice(r)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var filters storage.TelemetryFilters
	if filters.StartTime, err = parseTimeParam(r, "start"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid start time")
		return
	}
	if filters.EndTime, err = parseTimeParam(r, "end"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid end time")
		return
	}

	limit, offset := pagination(r)
	records, total, err := s.store.ListTelemetry(r.Context(), device.ID, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"telemetry": records,
		"total":     total,
	})
}
