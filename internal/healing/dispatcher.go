package healing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"autoheal/internal/audit"
	"autoheal/internal/incident"
	"autoheal/internal/metrics"
)

const component = "healing-dispatcher"

// DefaultDocuments maps each operation to the runner document that performs it.
var DefaultDocuments = map[Action]string{
	ActionRestartService: "AutoHeal-RestartService",
	ActionScaleUp:        "AutoHeal-ScaleService",
	ActionScaleDown:      "AutoHeal-ScaleService",
	ActionClearCache:     "AutoHeal-ClearCache",
	ActionRebootInstance: "AWS-RestartEC2Instance",
}

// Target names the resources remediation documents act on.
type Target struct {
	Cluster    string
	Service    string
	InstanceID string
}

type IncidentUpdater interface {
	UpdateIncident(ctx context.Context, incidentID, timestamp string, patch incident.Patch) error
}

// Request is one dispatcher invocation. PreviousStatus carries the PRIMARY
// outcome for FALLBACK calls.
type Request struct {
	IncidentID     string `json:"incident_id"`
	Timestamp      string `json:"timestamp"`
	Mode           Mode   `json:"action_type"`
	Action         string `json:"original_action"`
	PreviousStatus Status `json:"previous_status,omitempty"`
}

type Dispatcher struct {
	Runner       Runner
	Incidents    IncidentUpdater
	Audit        *audit.Recorder
	Documents    map[Action]string
	Target       Target
	PollInterval time.Duration
	MaxPolls     int
	Sleep        func(ctx context.Context, d time.Duration) error
	Logger       *slog.Logger
}

func NewDispatcher(runner Runner, incidents IncidentUpdater, rec *audit.Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{Runner: runner, Incidents: incidents, Audit: rec, Logger: logger}
}

// Dispatch maps the request to an operation, runs it and records the
// outcome. It always returns an outcome; runner failures become FAILED.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	mode := req.Mode
	if mode == "" {
		mode = ModePrimary
	}
	req.Mode = mode
	var outcome Outcome
	if mode == ModeFallback && req.PreviousStatus != "" && req.PreviousStatus != StatusFailed {
		outcome = Outcome{
			Status:  StatusSkipped,
			Message: fmt.Sprintf("Fallback requires a FAILED primary outcome, got %s", req.PreviousStatus),
		}
	} else if op, skip, ok := plan(mode, req.Action); !ok {
		outcome = skip
	} else {
		outcome = d.execute(ctx, op)
	}
	d.record(ctx, req, outcome, audit.EventHealingExecuted)
	return outcome
}

// Resume re-polls an execution reported IN_PROGRESS by an earlier call.
func (d *Dispatcher) Resume(ctx context.Context, req Request, executionID string, op Action) Outcome {
	if req.Mode == "" {
		req.Mode = ModePrimary
	}
	var outcome Outcome
	switch {
	case executionID == "":
		outcome = Outcome{Status: StatusUnknown, Message: "execution id required to resume", Operation: op}
	case d.Runner == nil:
		outcome = Outcome{Status: StatusUnknown, Message: "automation runner not configured", ExecutionID: executionID, Operation: op}
	default:
		outcome = d.poller().Await(ctx, executionID)
		outcome.Operation = op
		if outcome.Status == StatusSuccess {
			outcome.Message = successMessage(op, d.Target)
		}
	}
	d.record(ctx, req, outcome, audit.EventHealingRepolled)
	return outcome
}

func (d *Dispatcher) execute(ctx context.Context, op Action) Outcome {
	logger := d.logger().With("operation", string(op))
	if d.Runner == nil {
		return Outcome{Status: StatusFailed, Message: "automation runner not configured", Operation: op}
	}
	document := d.document(op)
	executionID, err := d.Runner.Start(ctx, document, parameters(op, d.Target))
	if err != nil {
		logger.Error("runner start failed", "document", document, "error", err)
		return Outcome{Status: StatusFailed, Message: fmt.Sprintf("start %s: %v", document, err), Operation: op}
	}
	logger.Info("runner execution started", "document", document, "execution_id", executionID)
	outcome := d.poller().Await(ctx, executionID)
	outcome.Operation = op
	if outcome.Status == StatusSuccess {
		outcome.Message = successMessage(op, d.Target)
	}
	return outcome
}

// record writes the audit entry and then the incident update. The two
// writes fail independently and neither changes the outcome.
func (d *Dispatcher) record(ctx context.Context, req Request, outcome Outcome, eventType string) {
	logger := d.logger().With("incident_id", req.IncidentID, "action", req.Action, "mode", string(req.Mode))
	metrics.HealingOutcomesTotal.WithLabelValues(req.Action, string(req.Mode), string(outcome.Status)).Inc()
	logger.Info("healing outcome", "status", string(outcome.Status), "execution_id", outcome.ExecutionID, "message", outcome.Message)

	d.Audit.Record(ctx, audit.Entry{
		IncidentID: req.IncidentID,
		EventType:  eventType,
		ActionType: string(req.Mode),
		Details: audit.Details(map[string]any{
			"original_action": req.Action,
			"outcome":         outcome,
		}),
		Component: component,
	})

	if req.IncidentID == "" || d.Incidents == nil {
		logger.Warn("incident update skipped")
		return
	}
	result, err := json.Marshal(outcome)
	if err != nil {
		logger.Error("encode healing result", "error", err)
		return
	}
	status := string(outcome.Status)
	patch := incident.Patch{HealingStatus: &status, HealingResult: result}
	switch req.Mode {
	case ModeFallback:
		used := true
		patch.FallbackUsed = &used
	case ModeRollback:
		patch.RollbackStatus = &status
	}
	if err := d.Incidents.UpdateIncident(ctx, req.IncidentID, req.Timestamp, patch); err != nil {
		logger.Error("incident update failed", "error", err)
	}
}

func (d *Dispatcher) poller() Poller {
	return Poller{
		Runner:   d.Runner,
		Interval: d.PollInterval,
		MaxPolls: d.MaxPolls,
		Sleep:    d.Sleep,
		Logger:   d.logger(),
	}
}

func (d *Dispatcher) document(op Action) string {
	if doc, ok := d.Documents[op]; ok && doc != "" {
		return doc
	}
	return DefaultDocuments[op]
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func parameters(op Action, t Target) map[string]string {
	switch op {
	case ActionRestartService:
		return map[string]string{"Cluster": t.Cluster, "Service": t.Service}
	case ActionScaleUp:
		return map[string]string{"Cluster": t.Cluster, "Service": t.Service, "Delta": "1"}
	case ActionScaleDown:
		return map[string]string{"Cluster": t.Cluster, "Service": t.Service, "Delta": "-1"}
	case ActionClearCache, ActionRebootInstance:
		return map[string]string{"InstanceId": t.InstanceID}
	default:
		return map[string]string{}
	}
}

func successMessage(op Action, t Target) string {
	switch op {
	case ActionRestartService:
		return fmt.Sprintf("Service %s restart initiated.", t.Service)
	case ActionScaleUp:
		return "Service scaled up by 1 task."
	case ActionScaleDown:
		return "Service scaled down (Rollback)."
	case ActionClearCache:
		return "Cache cleared."
	case ActionRebootInstance:
		return "Instance reboot initiated."
	default:
		return fmt.Sprintf("%s completed.", op)
	}
}
