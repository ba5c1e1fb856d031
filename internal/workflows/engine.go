package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"autoheal/internal/approvals"
)

// Engine completes a pending RequestApproval activity by its task token.
type Engine struct {
	Client client.Client
}

func NewEngine(c client.Client) *Engine {
	return &Engine{Client: c}
}

func (e *Engine) ResumeSuccess(ctx context.Context, token []byte, output approvals.Verdict) error {
	if e == nil || e.Client == nil {
		return errors.New("temporal client required")
	}
	return e.Client.CompleteActivity(ctx, token, output, nil)
}

func (e *Engine) ResumeFailure(ctx context.Context, token []byte, reason, cause string) error {
	if e == nil || e.Client == nil {
		return errors.New("temporal client required")
	}
	return e.Client.CompleteActivity(ctx, token, nil, temporal.NewApplicationError(cause, reason))
}
