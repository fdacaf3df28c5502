package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hmflow/gprs-puller/internal/models"
	"github.com/hmflow/gprs-puller/internal/storage"
)

// HandleListEvents lists event logs
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)
	q := r.URL.Query()

	filters := storage.EventLogFilters{}

	// Parse filters
	if deviceID := q.Get("device_id"); deviceID != "" {
		id, err := uuid.Parse(deviceID)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device id")
			return
		}
		filters.DeviceID = &id
	}

	if portID := q.Get("port_id"); portID != "" {
		filters.PortID = &portID
	}

	if eventType := q.Get("type"); eventType != "" {
		t := models.EventType(eventType)
		filters.Type = &t
	}

	if level := q.Get("level"); level != "" {
		l := models.EventLevel(level)
		filters.Level = &l
	}

	var err error
	if filters.StartTime, err = parseTimeParam(r, "start"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid start time")
		return
	}
	if filters.EndTime, err = parseTimeParam(r, "end"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid end time")
		return
	}

	events, total, err := s.store.ListEventLogs(ctx, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
