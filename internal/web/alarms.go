package web

import (
	"context"
	"io"
	"net/http"

	"autoheal/internal/incident"
)

type AlarmDetector interface {
	Detect(ctx context.Context, ev incident.AlarmEvent) (incident.Incident, bool, error)
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "read body")
		return
	}
	ev, err := incident.ParseAlarmEvent(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid alarm event")
		return
	}
	inc, created, err := s.Detector.Detect(r.Context(), ev)
	if err != nil && !created {
		s.logger().Error("alarm intake failed", "alarm_name", ev.Detail.AlarmName, "error", err)
		writeError(w, http.StatusInternalServerError, CodeStoreUnavailable, "incident store unavailable")
		return
	}
	if err != nil {
		s.logger().Error("incident workflow start failed", "incident_id", inc.ID, "error", err)
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	writeJSON(w, http.StatusAccepted, inc)
}
