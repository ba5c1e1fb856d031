package workflows

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"autoheal/internal/analysis"
	"autoheal/internal/approvals"
	"autoheal/internal/bus"
	"autoheal/internal/chatops"
	"autoheal/internal/healing"
	"autoheal/internal/incident"
	"autoheal/internal/risk"
)

func activityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		// The dispatcher polls the runner inside the activity.
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
}

type incidentRun struct {
	in       IncidentInput
	cfg      Config
	state    IncidentResult
	analysis json.RawMessage
	logger   log.Logger
}

// IncidentWorkflow drives one incident from analysis to a final status:
// parallel root cause and predictive analysis, the risk gate with an
// optional human approval, primary healing with a fallback, bounded
// re-polling of long running jobs, verification and rollback.
func IncidentWorkflow(ctx workflow.Context, in IncidentInput) (IncidentResult, error) {
	if in.IncidentID == "" {
		return IncidentResult{}, errors.New("incident_id required")
	}
	r := &incidentRun{
		in:     in,
		cfg:    in.Config.withDefaults(),
		state:  IncidentResult{IncidentID: in.IncidentID, Stage: StageAnalyzing, Status: incident.StatusDetected},
		logger: workflow.GetLogger(ctx),
	}
	if err := workflow.SetQueryHandler(ctx, QueryState, func() (IncidentResult, error) {
		return r.state, nil
	}); err != nil {
		return r.state, err
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions())
	r.publish(ctx, bus.EventDetected, "")

	root, err := r.analyze(ctx)
	if err != nil {
		return r.finish(ctx, incident.StatusFailed, "Analysis failed: "+err.Error()), err
	}
	r.state.Status = incident.StatusAnalyzed
	r.analysis = root.Payload()
	r.state.Action = root.RootCause.RecommendedAction

	assessment := r.assessRisk(ctx)
	r.state.Risk = &assessment
	if assessment.RequiresApproval() {
		verdict, err := r.awaitApproval(ctx, assessment)
		if err != nil {
			return r.finish(ctx, incident.StatusFailed, approvalFailure(err)), nil
		}
		r.state.Approval = &verdict
	}

	r.state.Stage = StageHealing
	r.setStatus(ctx, incident.StatusHealing)
	outcome := r.heal(ctx, healing.Request{Mode: healing.ModePrimary})
	if outcome.Status == healing.StatusFailed {
		r.state.FallbackUsed = true
		outcome = r.heal(ctx, healing.Request{Mode: healing.ModeFallback, PreviousStatus: healing.StatusFailed})
	}
	r.state.Healing = &outcome

	switch {
	case outcome.Status == healing.StatusInProgress:
		// Left HEALING for the reconciler, which owns the execution from here.
		r.state.Stage = StageAwaitingRunner
		r.state.Message = "Healing still in progress: " + outcome.ExecutionID
		return r.state, nil
	case outcome.Status == healing.StatusSuccess:
	case outcome.Status == healing.StatusSkipped && !r.state.FallbackUsed:
	default:
		return r.finish(ctx, incident.StatusFailed, outcome.Message), nil
	}

	verification := r.verify(ctx)
	r.state.Verification = &verification
	if verification.Resolved() {
		msg := outcome.Message
		if msg == "" {
			msg = verification.Message
		}
		return r.finish(ctx, incident.StatusResolved, msg), nil
	}
	msg := "Verification failed: " + verification.Message
	if outcome.Status == healing.StatusSuccess {
		rb := r.heal(ctx, healing.Request{Mode: healing.ModeRollback, Action: string(outcome.Operation)})
		r.state.Rollback = &rb
		msg += fmt.Sprintf(" Rollback %s: %s", rb.Status, rb.Message)
	}
	return r.finish(ctx, incident.StatusFailed, msg), nil
}

func (r *incidentRun) analyze(ctx workflow.Context) (analysis.Result, error) {
	rootF := workflow.ExecuteActivity(ctx, ActivityAnalyze, r.in.analysisInput(analysis.TypeRootCause))
	predF := workflow.ExecuteActivity(ctx, ActivityAnalyze, r.in.analysisInput(analysis.TypePredictive))
	var root, pred analysis.Result
	rootErr := rootF.Get(ctx, &root)
	if err := predF.Get(ctx, &pred); err != nil {
		r.logger.Warn("predictive analysis failed", "incident_id", r.in.IncidentID, "error", err)
	} else if pred.Prediction != nil {
		r.logger.Info("predictive analysis", "incident_id", r.in.IncidentID, "risk_score", pred.Prediction.RiskScore)
	}
	if rootErr != nil {
		return root, rootErr
	}
	if root.RootCause == nil {
		return root, errors.New("root cause analysis missing")
	}
	return root, nil
}

// assessRisk fails closed: an unavailable estimate requires approval.
func (r *incidentRun) assessRisk(ctx workflow.Context) risk.Assessment {
	var a risk.Assessment
	err := workflow.ExecuteActivity(ctx, ActivityAssessRisk, RiskInput{Action: r.state.Action, AlarmName: r.in.AlarmName}).Get(ctx, &a)
	if err != nil {
		r.logger.Warn("risk assessment failed", "incident_id", r.in.IncidentID, "error", err)
		return risk.Assessment{RiskLevel: risk.LevelHigh, Currency: "USD", Reasons: []string{"risk assessment unavailable"}}
	}
	return a
}

// awaitApproval suspends on the asynchronously completed approval activity
// until a channel resolves it or the approval window closes.
func (r *incidentRun) awaitApproval(ctx workflow.Context, a risk.Assessment) (approvals.Verdict, error) {
	r.state.Stage = StageAwaitingApproval
	r.publish(ctx, bus.EventApprovalRequired, "")
	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: r.cfg.ApprovalTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var verdict approvals.Verdict
	err := workflow.ExecuteActivity(actx, ActivityRequestApproval, ApprovalInput{
		IncidentID:     r.in.IncidentID,
		Analysis:       r.analysis,
		RiskAssessment: a,
	}).Get(actx, &verdict)
	if err != nil {
		r.logger.Info("approval not granted", "incident_id", r.in.IncidentID, "error", err)
		return verdict, err
	}
	r.logger.Info("approval granted", "incident_id", r.in.IncidentID, "approver", verdict.Approver, "source", string(verdict.Source))
	return verdict, nil
}

func approvalFailure(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == approvals.RejectionReason {
		return "Rejected: " + appErr.Message()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "Approval window expired."
	}
	return "Approval failed: " + err.Error()
}

// heal dispatches one healing mode and re-polls an IN_PROGRESS job on
// durable timers, at most RepollAttempts times.
func (r *incidentRun) heal(ctx workflow.Context, req healing.Request) healing.Outcome {
	req.IncidentID = r.in.IncidentID
	req.Timestamp = r.in.Timestamp
	if req.Action == "" {
		req.Action = r.state.Action
	}
	var out healing.Outcome
	if err := workflow.ExecuteActivity(ctx, ActivityHeal, req).Get(ctx, &out); err != nil {
		r.logger.Error("healing activity failed", "incident_id", r.in.IncidentID, "mode", string(req.Mode), "error", err)
		return healing.Outcome{Status: healing.StatusFailed, Message: err.Error()}
	}
	for i := 0; out.Status == healing.StatusInProgress && i < r.cfg.RepollAttempts; i++ {
		if err := workflow.Sleep(ctx, r.cfg.RepollDelay); err != nil {
			return out
		}
		var next healing.Outcome
		in := RepollInput{Request: req, ExecutionID: out.ExecutionID, Operation: out.Operation}
		if err := workflow.ExecuteActivity(ctx, ActivityCheckHealing, in).Get(ctx, &next); err != nil {
			r.logger.Warn("healing re-poll failed", "incident_id", r.in.IncidentID, "execution_id", out.ExecutionID, "error", err)
			continue
		}
		if next.ExecutionID == "" {
			next.ExecutionID = out.ExecutionID
		}
		out = next
	}
	return out
}

func (r *incidentRun) verify(ctx workflow.Context) analysis.Verification {
	r.state.Stage = StageVerifying
	var v analysis.Verification
	if err := workflow.ExecuteActivity(ctx, ActivityVerify, r.in.analysisInput(analysis.TypeReAnalysis)).Get(ctx, &v); err != nil {
		r.logger.Warn("verification failed", "incident_id", r.in.IncidentID, "error", err)
		return analysis.Verification{Status: analysis.VerificationNotResolved, Message: "Verification unavailable."}
	}
	return v
}

func (r *incidentRun) setStatus(ctx workflow.Context, status incident.Status) {
	r.state.Status = status
	in := StatusInput{IncidentID: r.in.IncidentID, Timestamp: r.in.Timestamp, Status: status}
	if err := workflow.ExecuteActivity(ctx, ActivitySetIncidentStatus, in).Get(ctx, nil); err != nil {
		r.logger.Error("incident status update failed", "incident_id", r.in.IncidentID, "status", string(status), "error", err)
	}
}

func (r *incidentRun) finish(ctx workflow.Context, status incident.Status, msg string) IncidentResult {
	r.setStatus(ctx, status)
	r.state.Stage = StageDone
	r.state.Message = msg
	note := chatops.Notification{IncidentID: r.in.IncidentID, State: chatops.StateFailed, Message: msg, Analysis: r.analysis}
	if status == incident.StatusResolved {
		note.State = chatops.StateHealed
	}
	if err := workflow.ExecuteActivity(ctx, ActivityNotify, note).Get(ctx, nil); err != nil {
		r.logger.Warn("incident notification failed", "incident_id", r.in.IncidentID, "error", err)
	}
	return r.state
}

func (r *incidentRun) publish(ctx workflow.Context, eventType, msg string) {
	ev := bus.Event{Type: eventType, IncidentID: r.in.IncidentID, Status: string(r.state.Status), Message: msg}
	if err := workflow.ExecuteActivity(ctx, ActivityPublishEvent, ev).Get(ctx, nil); err != nil {
		r.logger.Warn("lifecycle event not published", "incident_id", r.in.IncidentID, "type", eventType, "error", err)
	}
}
