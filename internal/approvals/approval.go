package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

type Source string

const (
	SourceWeb  Source = "web"
	SourceChat Source = "chat"
)

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ParseDecision accepts APPROVE or REJECT in any case.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToUpper(strings.TrimSpace(s))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

func (d Decision) Status() Status {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusRejected
}

var (
	ErrNotFound          = errors.New("approval request not found")
	ErrExpired           = errors.New("approval request expired")
	ErrAlreadyResolved   = errors.New("approval request already processed")
	ErrInvalidDecision   = errors.New("invalid action")
	ErrInconsistentState = errors.New("approval resolved but workflow not released")
	ErrStoreUnavailable  = errors.New("approval store unavailable")
)

// AlreadyResolvedError reports the status that won the compare-and-swap.
type AlreadyResolvedError struct {
	Status Status
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyResolved.Error(), e.Status)
}

func (e *AlreadyResolvedError) Is(target error) bool {
	return target == ErrAlreadyResolved
}

// InconsistentStateError is returned when the ledger entry is resolved but
// the suspended workflow step could not be released. It needs an operator.
type InconsistentStateError struct {
	ApprovalID string
	Status     Status
	Err        error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("%s: approval %s is %s: %v", ErrInconsistentState.Error(), e.ApprovalID, e.Status, e.Err)
}

func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrInconsistentState
}

func (e *InconsistentStateError) Unwrap() error {
	return e.Err
}

// Approval is a ledger entry. Token is the continuation token of the
// suspended workflow step and is never serialized.
type Approval struct {
	ID             string          `json:"approval_id"`
	Token          []byte          `json:"-"`
	IncidentID     string          `json:"incident_id"`
	Status         Status          `json:"status"`
	Analysis       json.RawMessage `json:"analysis,omitempty"`
	RiskAssessment json.RawMessage `json:"risk_assessment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ApprovedBy     string          `json:"approved_by,omitempty"`
	Source         Source          `json:"approval_source,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// Expired reports whether the deadline has been reached at now.
func (a Approval) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Redacted returns a copy without the continuation token.
func (a Approval) Redacted() Approval {
	a.Token = nil
	return a
}

// Resolution is the conditional write applied to a PENDING entry.
type Resolution struct {
	Status  Status
	Actor   string
	Source  Source
	Comment string
	At      time.Time
}

// Ledger stores approval requests. ResolveApproval must be a single atomic
// conditional write: it succeeds only when the stored status is PENDING and
// ExpiresAt is after res.At, and otherwise reports ErrNotFound, ErrExpired or
// *AlreadyResolvedError from the same stored state.
type Ledger interface {
	CreateApproval(ctx context.Context, a Approval) error
	GetApproval(ctx context.Context, approvalID string) (Approval, error)
	ResolveApproval(ctx context.Context, approvalID string, res Resolution) (Approval, error)
}

// Verdict is the success output delivered to the released workflow step.
type Verdict struct {
	Status   Status `json:"status"`
	Approver string `json:"approver"`
	Source   Source `json:"source"`
	Comment  string `json:"comment,omitempty"`
}

// RejectionReason is the failure reason delivered on REJECT.
const RejectionReason = "ManualRejection"

// Engine releases suspended workflow steps by continuation token.
type Engine interface {
	ResumeSuccess(ctx context.Context, token []byte, output Verdict) error
	ResumeFailure(ctx context.Context, token []byte, reason, cause string) error
}
