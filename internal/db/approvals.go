package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"autoheal/internal/approvals"
)

const approvalColumns = `approval_id, task_token, incident_id, status, analysis, risk_assessment,
	created_at, expires_at, COALESCE(approved_by, ''), COALESCE(approval_source, ''), COALESCE(comment, ''), resolved_at`

func (d *DB) CreateApproval(ctx context.Context, a approvals.Approval) error {
	if err := d.ready(); err != nil {
		return err
	}
	if a.ID == "" {
		return errors.New("approval_id required")
	}
	status := a.Status
	if status == "" {
		status = approvals.StatusPending
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO approvals(approval_id, task_token, incident_id, status, analysis, risk_assessment, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.Token, a.IncidentID, string(status), nullJSON(a.Analysis), nullJSON(a.RiskAssessment), a.CreatedAt, a.ExpiresAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("approval %s already exists", a.ID)
	}
	return err
}

func (d *DB) GetApproval(ctx context.Context, approvalID string) (approvals.Approval, error) {
	if err := d.ready(); err != nil {
		return approvals.Approval{}, err
	}
	row := d.conn.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE approval_id=$1`, approvalID)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return approvals.Approval{}, approvals.ErrNotFound
	}
	return a, err
}

// ResolveApproval is one conditional UPDATE: the row changes only while it is
// PENDING and unexpired at res.At. When nothing matched, the stored row
// decides which error the caller sees.
func (d *DB) ResolveApproval(ctx context.Context, approvalID string, res approvals.Resolution) (approvals.Approval, error) {
	if err := d.ready(); err != nil {
		return approvals.Approval{}, err
	}
	row := d.conn.QueryRowContext(ctx, `
		UPDATE approvals
		SET status=$2, approved_by=$3, approval_source=$4, comment=$5, resolved_at=$6
		WHERE approval_id=$1 AND status='PENDING' AND expires_at > $6
		RETURNING `+approvalColumns,
		approvalID, string(res.Status), nullString(res.Actor), nullString(string(res.Source)), nullString(res.Comment), res.At)
	a, err := scanApproval(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return approvals.Approval{}, err
	}
	cur, err := d.GetApproval(ctx, approvalID)
	if err != nil {
		return approvals.Approval{}, err
	}
	if cur.Expired(res.At) {
		return approvals.Approval{}, approvals.ErrExpired
	}
	return approvals.Approval{}, &approvals.AlreadyResolvedError{Status: cur.Status}
}

func scanApproval(row rowScanner) (approvals.Approval, error) {
	var (
		a          approvals.Approval
		status     string
		source     string
		analysis   []byte
		risk       []byte
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Token, &a.IncidentID, &status, &analysis, &risk,
		&a.CreatedAt, &a.ExpiresAt, &a.ApprovedBy, &source, &a.Comment, &resolvedAt); err != nil {
		return approvals.Approval{}, err
	}
	a.Status = approvals.Status(status)
	a.Source = approvals.Source(source)
	if len(analysis) > 0 {
		a.Analysis = analysis
	}
	if len(risk) > 0 {
		a.RiskAssessment = risk
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}
