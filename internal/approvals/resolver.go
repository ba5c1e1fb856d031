package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"autoheal/internal/audit"
	"autoheal/internal/incident"
	"autoheal/internal/metrics"
)

const component = "approval-resolver"

type IncidentReader interface {
	LatestIncident(ctx context.Context, incidentID string) (incident.Incident, error)
}

// Alerter notifies operators about approvals left in an inconsistent state.
type Alerter interface {
	AlertInconsistentApproval(ctx context.Context, a Approval, cause error) error
}

// View is the read-path representation: a redacted approval plus a live
// snapshot of the incident when one could be loaded.
type View struct {
	Approval
	IncidentStatus     incident.Status `json:"incident_status,omitempty"`
	HealingStatus      string          `json:"healing_status,omitempty"`
	HealingResult      json.RawMessage `json:"healing_result,omitempty"`
	VerificationResult json.RawMessage `json:"verification_result,omitempty"`
	RollbackStatus     string          `json:"rollback_status,omitempty"`
}

type ResolveRequest struct {
	ApprovalID string
	Decision   Decision
	Actor      string
	Comment    string
	Source     Source
}

type Resolver struct {
	Ledger    Ledger
	Incidents IncidentReader
	Engine    Engine
	Audit     *audit.Recorder
	Alerter   Alerter
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewResolver(ledger Ledger, incidents IncidentReader, engine Engine, logger *slog.Logger) *Resolver {
	return &Resolver{Ledger: ledger, Incidents: incidents, Engine: engine, Logger: logger}
}

// Get returns the approval without its token, merged with the incident
// snapshot. Incident lookup failures only drop the snapshot.
func (r *Resolver) Get(ctx context.Context, approvalID string) (View, error) {
	if r.Ledger == nil {
		return View{}, errors.New("ledger required")
	}
	a, err := r.Ledger.GetApproval(ctx, approvalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return View{}, err
		}
		return View{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	view := View{Approval: a.Redacted()}
	if a.IncidentID == "" || r.Incidents == nil {
		return view, nil
	}
	inc, err := r.Incidents.LatestIncident(ctx, a.IncidentID)
	if err != nil {
		r.logger().Warn("incident snapshot unavailable", "approval_id", approvalID, "incident_id", a.IncidentID, "error", err)
		return view, nil
	}
	view.IncidentStatus = inc.Status
	view.HealingStatus = inc.HealingStatus
	view.HealingResult = inc.HealingResult
	view.VerificationResult = inc.Verification
	view.RollbackStatus = inc.RollbackStatus
	return view, nil
}

// Resolve moves a PENDING approval to the decided status exactly once and
// then releases the suspended workflow step. Only the caller whose
// conditional write succeeds signals the engine.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (Approval, error) {
	if r.Ledger == nil {
		return Approval{}, errors.New("ledger required")
	}
	if r.Engine == nil {
		return Approval{}, errors.New("engine required")
	}
	if req.Decision != DecisionApprove && req.Decision != DecisionReject {
		return Approval{}, fmt.Errorf("%w: %q", ErrInvalidDecision, req.Decision)
	}
	logger := r.logger().With("approval_id", req.ApprovalID, "source", string(req.Source))
	res := Resolution{
		Status:  req.Decision.Status(),
		Actor:   req.Actor,
		Source:  req.Source,
		Comment: req.Comment,
		At:      r.now().UTC(),
	}
	a, err := r.Ledger.ResolveApproval(ctx, req.ApprovalID, res)
	if err != nil {
		outcome := classify(err)
		metrics.ApprovalResolutionsTotal.WithLabelValues(string(req.Source), outcome).Inc()
		if outcome == "store_unavailable" {
			logger.Error("approval resolve failed", "error", err)
			return Approval{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		logger.Info("approval not resolved", "outcome", outcome, "error", err)
		return Approval{}, err
	}

	releaseErr := r.release(ctx, a, req)
	r.recordAudit(ctx, a, releaseErr)
	if releaseErr != nil {
		metrics.ApprovalResolutionsTotal.WithLabelValues(string(req.Source), "inconsistent_state").Inc()
		metrics.InconsistentApprovalsTotal.Inc()
		inconsistent := &InconsistentStateError{ApprovalID: a.ID, Status: a.Status, Err: releaseErr}
		logger.Error("approval resolved but workflow release failed", "incident_id", a.IncidentID, "status", string(a.Status), "error", releaseErr)
		if r.Alerter != nil {
			if err := r.Alerter.AlertInconsistentApproval(ctx, a.Redacted(), inconsistent); err != nil {
				logger.Error("operator alert failed", "error", err)
			}
		}
		return a.Redacted(), inconsistent
	}
	metrics.ApprovalResolutionsTotal.WithLabelValues(string(req.Source), "resolved").Inc()
	logger.Info("approval resolved", "incident_id", a.IncidentID, "status", string(a.Status), "actor", req.Actor)
	return a.Redacted(), nil
}

func (r *Resolver) release(ctx context.Context, a Approval, req ResolveRequest) error {
	if len(a.Token) == 0 {
		return errors.New("continuation token missing")
	}
	if a.Status == StatusApproved {
		return r.Engine.ResumeSuccess(ctx, a.Token, Verdict{
			Status:   StatusApproved,
			Approver: req.Actor,
			Source:   req.Source,
			Comment:  req.Comment,
		})
	}
	cause := fmt.Sprintf("User %s rejected via %s. Comment: %s", req.Actor, req.Source, req.Comment)
	return r.Engine.ResumeFailure(ctx, a.Token, RejectionReason, cause)
}

func (r *Resolver) recordAudit(ctx context.Context, a Approval, releaseErr error) {
	if r.Audit == nil {
		return
	}
	details := map[string]any{
		"approval_id":     a.ID,
		"status":          a.Status,
		"approved_by":     a.ApprovedBy,
		"approval_source": a.Source,
		"comment":         a.Comment,
		"released":        releaseErr == nil,
	}
	if releaseErr != nil {
		details["release_error"] = releaseErr.Error()
	}
	r.Audit.Record(ctx, audit.Entry{
		IncidentID: a.IncidentID,
		EventType:  audit.EventApprovalResolved,
		ActionType: string(a.Status),
		Details:    audit.Details(details),
		Component:  component,
	})
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	default:
		return "store_unavailable"
	}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
