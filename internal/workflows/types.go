package workflows

import (
	"encoding/json"
	"time"

	"autoheal/internal/analysis"
	"autoheal/internal/approvals"
	"autoheal/internal/healing"
	"autoheal/internal/incident"
	"autoheal/internal/risk"
)

// Activity names. Activities are registered from the methods of
// *Activities, so each constant matches a method name.
const (
	ActivityAnalyze           = "Analyze"
	ActivityAssessRisk        = "AssessRisk"
	ActivityRequestApproval   = "RequestApproval"
	ActivitySetIncidentStatus = "SetIncidentStatus"
	ActivityHeal              = "Heal"
	ActivityCheckHealing      = "CheckHealing"
	ActivityVerify            = "Verify"
	ActivityNotify            = "Notify"
	ActivityPublishEvent      = "PublishEvent"
)

const QueryState = "state"

// Stages reported by the state query.
const (
	StageAnalyzing        = "ANALYZING"
	StageAwaitingApproval = "AWAITING_APPROVAL"
	StageHealing          = "HEALING"
	StageVerifying        = "VERIFYING"
	StageAwaitingRunner   = "AWAITING_RUNNER"
	StageDone             = "DONE"
)

type Config struct {
	ApprovalTimeout time.Duration `json:"approval_timeout"`
	RepollDelay     time.Duration `json:"repoll_delay"`
	RepollAttempts  int           `json:"repoll_attempts"`
}

const (
	DefaultRepollDelay    = time.Minute
	DefaultRepollAttempts = 5
)

func (c Config) withDefaults() Config {
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = approvals.DefaultTTL
	}
	if c.RepollDelay <= 0 {
		c.RepollDelay = DefaultRepollDelay
	}
	if c.RepollAttempts < 0 {
		c.RepollAttempts = 0
	} else if c.RepollAttempts == 0 {
		c.RepollAttempts = DefaultRepollAttempts
	}
	return c
}

type IncidentInput struct {
	IncidentID string `json:"incident_id"`
	Timestamp  string `json:"timestamp"`
	AlarmName  string `json:"alarm_name"`
	Reason     string `json:"reason"`
	Config     Config `json:"config"`
}

func (in IncidentInput) analysisInput(t analysis.Type) analysis.Input {
	return analysis.Input{
		IncidentID: in.IncidentID,
		Timestamp:  in.Timestamp,
		AlarmName:  in.AlarmName,
		Reason:     in.Reason,
		Type:       t,
	}
}

// IncidentResult is both the workflow result and the state query answer.
type IncidentResult struct {
	IncidentID   string                 `json:"incident_id"`
	Stage        string                 `json:"stage"`
	Status       incident.Status        `json:"status"`
	Action       string                 `json:"action,omitempty"`
	Risk         *risk.Assessment       `json:"risk,omitempty"`
	Approval     *approvals.Verdict     `json:"approval,omitempty"`
	Healing      *healing.Outcome       `json:"healing,omitempty"`
	FallbackUsed bool                   `json:"fallback_used,omitempty"`
	Rollback     *healing.Outcome       `json:"rollback,omitempty"`
	Verification *analysis.Verification `json:"verification,omitempty"`
	Message      string                 `json:"message,omitempty"`
}

type RiskInput struct {
	Action    string `json:"action"`
	AlarmName string `json:"alarm_name"`
}

type ApprovalInput struct {
	IncidentID     string          `json:"incident_id"`
	Analysis       json.RawMessage `json:"analysis"`
	RiskAssessment risk.Assessment `json:"risk_assessment"`
}

type StatusInput struct {
	IncidentID string          `json:"incident_id"`
	Timestamp  string          `json:"timestamp"`
	Status     incident.Status `json:"status"`
}

type RepollInput struct {
	Request     healing.Request `json:"request"`
	ExecutionID string          `json:"execution_id"`
	Operation   healing.Action  `json:"operation"`
}
