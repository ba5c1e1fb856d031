package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.temporal.io/sdk/activity"

	"autoheal/internal/analysis"
	"autoheal/internal/approvals"
	"autoheal/internal/bus"
	"autoheal/internal/chatops"
	"autoheal/internal/healing"
	"autoheal/internal/incident"
	"autoheal/internal/risk"
)

type IncidentNotifier interface {
	NotifyIncident(ctx context.Context, note chatops.Notification) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// Activities holds the collaborators behind every activity. Each exported
// method is registered as an activity under its own name.
type Activities struct {
	Analyzer   *analysis.Analyzer
	Verifier   *analysis.Verifier
	Estimator  *risk.Estimator
	Requester  *approvals.Requester
	Dispatcher *healing.Dispatcher
	Incidents  healing.IncidentUpdater
	Notifier   IncidentNotifier
	Events     EventPublisher
	Logger     *slog.Logger
}

func (a *Activities) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	if a.Analyzer == nil {
		return analysis.Result{}, errors.New("analyzer required")
	}
	return a.Analyzer.Analyze(ctx, in)
}

func (a *Activities) AssessRisk(ctx context.Context, in RiskInput) (risk.Assessment, error) {
	est := a.Estimator
	if est == nil {
		est = risk.NewEstimator(0)
	}
	return est.Estimate(in.Action, in.AlarmName), nil
}

// RequestApproval records the approval under this activity's task token and
// leaves the activity open. A resolver completes it through the engine.
func (a *Activities) RequestApproval(ctx context.Context, in ApprovalInput) (approvals.Verdict, error) {
	if err := a.requestApproval(ctx, activity.GetInfo(ctx).TaskToken, in); err != nil {
		return approvals.Verdict{}, err
	}
	return approvals.Verdict{}, activity.ErrResultPending
}

func (a *Activities) requestApproval(ctx context.Context, token []byte, in ApprovalInput) error {
	if a.Requester == nil {
		return errors.New("approval requester required")
	}
	riskJSON, err := json.Marshal(in.RiskAssessment)
	if err != nil {
		return err
	}
	_, err = a.Requester.Request(ctx, approvals.RequestInput{
		Token:          token,
		IncidentID:     in.IncidentID,
		Analysis:       in.Analysis,
		RiskAssessment: riskJSON,
	})
	return err
}

func (a *Activities) SetIncidentStatus(ctx context.Context, in StatusInput) error {
	if a.Incidents == nil {
		return errors.New("incident store required")
	}
	return a.Incidents.UpdateIncident(ctx, in.IncidentID, in.Timestamp, incident.StatusPatch(in.Status))
}

func (a *Activities) Heal(ctx context.Context, req healing.Request) (healing.Outcome, error) {
	if a.Dispatcher == nil {
		return healing.Outcome{}, errors.New("dispatcher required")
	}
	return a.Dispatcher.Dispatch(ctx, req), nil
}

func (a *Activities) CheckHealing(ctx context.Context, in RepollInput) (healing.Outcome, error) {
	if a.Dispatcher == nil {
		return healing.Outcome{}, errors.New("dispatcher required")
	}
	return a.Dispatcher.Resume(ctx, in.Request, in.ExecutionID, in.Operation), nil
}

func (a *Activities) Verify(ctx context.Context, in analysis.Input) (analysis.Verification, error) {
	if a.Verifier == nil {
		return analysis.Verification{}, errors.New("verifier required")
	}
	return a.Verifier.Verify(ctx, in)
}

// Notify posts the final notification and publishes the matching lifecycle
// event. The event is published even when the chat post fails.
func (a *Activities) Notify(ctx context.Context, note chatops.Notification) error {
	var notifyErr error
	if a.Notifier != nil {
		notifyErr = a.Notifier.NotifyIncident(ctx, note)
	}
	eventType := bus.EventFailed
	switch note.State {
	case chatops.StateHealed:
		eventType = bus.EventHealed
	case chatops.StateRequiresApproval:
		eventType = bus.EventApprovalRequired
	}
	if a.Events != nil {
		if err := a.Events.Publish(ctx, bus.Event{Type: eventType, IncidentID: note.IncidentID, Status: note.State, Message: note.Message}); err != nil {
			a.logger().Warn("lifecycle event not published", "incident_id", note.IncidentID, "error", err)
		}
	}
	return notifyErr
}

func (a *Activities) PublishEvent(ctx context.Context, ev bus.Event) error {
	if a.Events == nil {
		return nil
	}
	return a.Events.Publish(ctx, ev)
}

func (a *Activities) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
