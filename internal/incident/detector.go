package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"autoheal/internal/metrics"
)

const alarmState = "ALARM"

// AlarmEvent is a CloudWatch style alarm state change.
type AlarmEvent struct {
	Detail AlarmDetail `json:"detail"`
}

type AlarmDetail struct {
	AlarmName string     `json:"alarmName"`
	State     AlarmState `json:"state"`
}

type AlarmState struct {
	Value     string `json:"value"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

func ParseAlarmEvent(data []byte) (AlarmEvent, error) {
	var ev AlarmEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return AlarmEvent{}, fmt.Errorf("decode alarm event: %w", err)
	}
	return ev, nil
}

type WorkflowStarter interface {
	StartIncidentWorkflow(ctx context.Context, inc Incident) (string, error)
}

type Detector struct {
	Store   Store
	Starter WorkflowStarter
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

func NewDetector(store Store, starter WorkflowStarter, logger *slog.Logger) *Detector {
	return &Detector{Store: store, Starter: starter, Logger: logger}
}

// Detect records a DETECTED incident for an alarm in ALARM state and starts
// its workflow. Other alarm states are ignored and report ok=false.
func (d *Detector) Detect(ctx context.Context, ev AlarmEvent) (Incident, bool, error) {
	if d.Store == nil {
		return Incident{}, false, errors.New("store required")
	}
	logger := d.logger()
	if !strings.EqualFold(ev.Detail.State.Value, alarmState) {
		logger.Info("alarm ignored", "alarm_name", ev.Detail.AlarmName, "state", ev.Detail.State.Value)
		return Incident{}, false, nil
	}
	now := d.now().UTC()
	ts := strings.TrimSpace(ev.Detail.State.Timestamp)
	if ts == "" {
		ts = now.Format(time.RFC3339Nano)
	}
	inc := Incident{
		ID:        d.newID(),
		Timestamp: ts,
		AlarmName: ev.Detail.AlarmName,
		Reason:    ev.Detail.State.Reason,
		Status:    StatusDetected,
		CreatedAt: now,
	}
	if err := d.Store.CreateIncident(ctx, inc); err != nil {
		return Incident{}, false, fmt.Errorf("create incident: %w", err)
	}
	metrics.IncidentsDetectedTotal.Inc()
	logger.Info("incident detected", "incident_id", inc.ID, "alarm_name", inc.AlarmName)
	if d.Starter != nil {
		runID, err := d.Starter.StartIncidentWorkflow(ctx, inc)
		if err != nil {
			return inc, true, fmt.Errorf("start workflow: %w", err)
		}
		logger.Info("incident workflow started", "incident_id", inc.ID, "workflow_id", runID)
	}
	return inc, true, nil
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Detector) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}
