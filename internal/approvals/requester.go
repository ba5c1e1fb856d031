package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = time.Hour

type RequestNotifier interface {
	NotifyApprovalRequest(ctx context.Context, a Approval) error
}

type RequestInput struct {
	Token          []byte
	IncidentID     string
	Analysis       json.RawMessage
	RiskAssessment json.RawMessage
}

// Requester records a PENDING approval for a suspended workflow step and
// announces it on the chat channel.
type Requester struct {
	Ledger   Ledger
	Notifier RequestNotifier
	TTL      time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

func NewRequester(ledger Ledger, notifier RequestNotifier, ttl time.Duration, logger *slog.Logger) *Requester {
	return &Requester{Ledger: ledger, Notifier: notifier, TTL: ttl, Logger: logger}
}

func (r *Requester) Request(ctx context.Context, in RequestInput) (Approval, error) {
	if r.Ledger == nil {
		return Approval{}, errors.New("ledger required")
	}
	if len(in.Token) == 0 {
		return Approval{}, errors.New("continuation token required")
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := r.now().UTC()
	a := Approval{
		ID:             r.newID(),
		Token:          in.Token,
		IncidentID:     in.IncidentID,
		Status:         StatusPending,
		Analysis:       in.Analysis,
		RiskAssessment: in.RiskAssessment,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	if err := r.Ledger.CreateApproval(ctx, a); err != nil {
		return Approval{}, fmt.Errorf("create approval: %w", err)
	}
	logger := r.logger().With("approval_id", a.ID, "incident_id", a.IncidentID)
	logger.Info("approval requested", "expires_at", a.ExpiresAt)
	if r.Notifier != nil {
		if err := r.Notifier.NotifyApprovalRequest(ctx, a.Redacted()); err != nil {
			// The web channel can still resolve the request.
			logger.Error("approval notification failed", "error", err)
		}
	}
	return a.Redacted(), nil
}

func (r *Requester) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Requester) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Requester) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}
