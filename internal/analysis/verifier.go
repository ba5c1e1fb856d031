package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"autoheal/internal/incident"
)

const (
	VerificationVerified    = "VERIFIED"
	VerificationNotResolved = "NOT_RESOLVED"
)

type Verification struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	NewIssues  string  `json:"new_issues,omitempty"`
}

func (v Verification) Resolved() bool {
	return v.Status == VerificationVerified
}

// Verifier re-analyses an incident after healing and records the verdict.
type Verifier struct {
	Analyzer  *Analyzer
	Incidents IncidentUpdater
}

func NewVerifier(analyzer *Analyzer, incidents IncidentUpdater) *Verifier {
	return &Verifier{Analyzer: analyzer, Incidents: incidents}
}

func (v *Verifier) Verify(ctx context.Context, in Input) (Verification, error) {
	in.Type = TypeReAnalysis
	res, err := v.Analyzer.Analyze(ctx, in)
	if err != nil {
		return Verification{}, err
	}
	out := verdict(*res.ReAnalysis)
	if in.IncidentID == "" || v.Incidents == nil {
		return out, nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return out, err
	}
	patch := incident.Patch{Verification: raw}
	if out.Resolved() {
		status := incident.StatusResolved
		patch.Status = &status
	}
	if err := v.Incidents.UpdateIncident(ctx, in.IncidentID, in.Timestamp, patch); err != nil {
		return out, fmt.Errorf("store verification: %w", err)
	}
	return out, nil
}

func verdict(r ReAnalysis) Verification {
	if r.IsResolved {
		return Verification{
			Status:     VerificationVerified,
			Message:    "Metrics returned to normal.",
			Confidence: r.ResolutionConfidence,
			NewIssues:  r.NewIssues,
		}
	}
	msg := "Issue persists after healing."
	if r.Reasoning != "" {
		msg = r.Reasoning
	}
	return Verification{
		Status:     VerificationNotResolved,
		Message:    msg,
		Confidence: r.ResolutionConfidence,
		NewIssues:  r.NewIssues,
	}
}
