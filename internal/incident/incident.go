package incident

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusDetected Status = "DETECTED"
	StatusAnalyzed Status = "ANALYZED"
	StatusHealing  Status = "HEALING"
	StatusResolved Status = "RESOLVED"
	StatusFailed   Status = "FAILED"
)

var (
	ErrNotFound      = errors.New("incident not found")
	ErrAlreadyExists = errors.New("incident already exists")
)

// Incident is identified by the (ID, Timestamp) pair.
type Incident struct {
	ID             string          `json:"incident_id"`
	Timestamp      string          `json:"timestamp"`
	AlarmName      string          `json:"alarm_name"`
	Reason         string          `json:"reason"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	Analysis       json.RawMessage `json:"analysis,omitempty"`
	HealingStatus  string          `json:"healing_status,omitempty"`
	HealingResult  json.RawMessage `json:"healing_result,omitempty"`
	FallbackUsed   bool            `json:"fallback_used,omitempty"`
	RollbackStatus string          `json:"rollback_status,omitempty"`
	Verification   json.RawMessage `json:"verification,omitempty"`
}

// Patch lists the fields an update writes. Nil fields are left untouched.
type Patch struct {
	Status         *Status
	Analysis       json.RawMessage
	HealingStatus  *string
	HealingResult  json.RawMessage
	FallbackUsed   *bool
	RollbackStatus *string
	Verification   json.RawMessage
}

func (p Patch) Empty() bool {
	return p.Status == nil &&
		p.Analysis == nil &&
		p.HealingStatus == nil &&
		p.HealingResult == nil &&
		p.FallbackUsed == nil &&
		p.RollbackStatus == nil &&
		p.Verification == nil
}

// Apply merges the patch into inc and returns the result.
func (p Patch) Apply(inc Incident) Incident {
	if p.Status != nil {
		inc.Status = *p.Status
	}
	if p.Analysis != nil {
		inc.Analysis = cloneRaw(p.Analysis)
	}
	if p.HealingStatus != nil {
		inc.HealingStatus = *p.HealingStatus
	}
	if p.HealingResult != nil {
		inc.HealingResult = cloneRaw(p.HealingResult)
	}
	if p.FallbackUsed != nil {
		inc.FallbackUsed = *p.FallbackUsed
	}
	if p.RollbackStatus != nil {
		inc.RollbackStatus = *p.RollbackStatus
	}
	if p.Verification != nil {
		inc.Verification = cloneRaw(p.Verification)
	}
	return inc
}

func StatusPatch(status Status) Patch {
	return Patch{Status: &status}
}

type Store interface {
	CreateIncident(ctx context.Context, inc Incident) error
	UpdateIncident(ctx context.Context, incidentID, timestamp string, patch Patch) error
	GetIncident(ctx context.Context, incidentID, timestamp string) (Incident, error)
	LatestIncident(ctx context.Context, incidentID string) (Incident, error)
}

// Lister is implemented by stores that can enumerate incidents by healing status.
type Lister interface {
	ListIncidentsByHealingStatus(ctx context.Context, healingStatus string, limit int) ([]Incident, error)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
