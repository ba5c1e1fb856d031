package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"autoheal/internal/metrics"
)

const (
	EventHealingExecuted  = "HEALING_EXECUTED"
	EventHealingRepolled  = "HEALING_REPOLLED"
	EventApprovalResolved = "APPROVAL_RESOLVED"
)

// Entry is an append-only audit record. There is no update or delete.
type Entry struct {
	IncidentID string          `json:"incident_id"`
	Timestamp  time.Time       `json:"timestamp"`
	EventType  string          `json:"event_type"`
	ActionType string          `json:"action_type"`
	Details    json.RawMessage `json:"details"`
	Component  string          `json:"component"`
}

type Writer interface {
	InsertAuditEntry(ctx context.Context, entry Entry) (string, error)
}

type Recorder struct {
	DB     Writer
	Logger *slog.Logger
	Now    func() time.Time
}

func New() *Recorder {
	return &Recorder{}
}

func NewWithDB(db Writer, logger *slog.Logger) *Recorder {
	return &Recorder{DB: db, Logger: logger}
}

// Append writes the entry and returns the writer's error.
func (r *Recorder) Append(ctx context.Context, entry Entry) error {
	if r == nil || r.DB == nil {
		return nil
	}
	if entry.EventType == "" {
		return errors.New("event_type required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage(`{}`)
	}
	_, err := r.DB.InsertAuditEntry(ctx, entry)
	return err
}

// Record appends the entry and swallows the error after logging and
// counting it. Callers use it where audit must never block the caller.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if err := r.Append(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.WithLabelValues(entry.Component).Inc()
		r.logger().Error("audit write failed",
			"incident_id", entry.IncidentID,
			"event_type", entry.EventType,
			"component", entry.Component,
			"error", err,
		)
	}
}

// Details marshals v for Entry.Details, falling back to an empty object.
func Details(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func (r *Recorder) logger() *slog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
