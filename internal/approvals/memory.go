package approvals

import (
	"context"
	"errors"
	"sync"
)

// MemoryLedger is an in-process Ledger. The mutex is its conditional-write
// primitive; callers never lock.
type MemoryLedger struct {
	mu    sync.Mutex
	items map[string]Approval
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{items: map[string]Approval{}}
}

func (l *MemoryLedger) CreateApproval(ctx context.Context, a Approval) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.ID == "" {
		return errors.New("approval_id required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.items == nil {
		l.items = map[string]Approval{}
	}
	if _, ok := l.items[a.ID]; ok {
		return errors.New("approval already exists")
	}
	l.items[a.ID] = a
	return nil
}

func (l *MemoryLedger) GetApproval(ctx context.Context, approvalID string) (Approval, error) {
	if err := ctx.Err(); err != nil {
		return Approval{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.items[approvalID]
	if !ok {
		return Approval{}, ErrNotFound
	}
	return a, nil
}

func (l *MemoryLedger) ResolveApproval(ctx context.Context, approvalID string, res Resolution) (Approval, error) {
	if err := ctx.Err(); err != nil {
		return Approval{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.items[approvalID]
	if !ok {
		return Approval{}, ErrNotFound
	}
	if a.Expired(res.At) {
		return Approval{}, ErrExpired
	}
	if a.Status != StatusPending {
		return Approval{}, &AlreadyResolvedError{Status: a.Status}
	}
	at := res.At
	a.Status = res.Status
	a.ApprovedBy = res.Actor
	a.Source = res.Source
	a.Comment = res.Comment
	a.ResolvedAt = &at
	l.items[approvalID] = a
	return a, nil
}
