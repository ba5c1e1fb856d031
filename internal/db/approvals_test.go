package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"autoheal/internal/approvals"
)

var dbNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func approvalRow(status string, expiresAt time.Time, resolvedAt sql.NullTime) fakeRow {
	return fakeRow{values: []any{
		"appr_1", []byte("token"), "inc_1", status, []byte(`{"recommended_action":"SCALE_UP"}`), []byte(nil),
		dbNow.Add(-time.Minute), expiresAt, "ops", "web", "", resolvedAt,
	}}
}

func TestCreateApproval(t *testing.T) {
	conn := &fakeConn{}
	d := &DB{conn: conn}
	err := d.CreateApproval(context.Background(), approvals.Approval{
		ID: "appr_1", Token: []byte("tok"), IncidentID: "inc_1", CreatedAt: dbNow, ExpiresAt: dbNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	args := conn.execArgs[0]
	if args[3] != "PENDING" {
		t.Fatalf("status default: %#v", args[3])
	}
	if string(args[1].([]byte)) != "tok" {
		t.Fatalf("token arg: %#v", args[1])
	}
}

func TestGetApproval(t *testing.T) {
	d := &DB{conn: &fakeConn{row: approvalRow("PENDING", dbNow.Add(time.Hour), sql.NullTime{})}}
	a, err := d.GetApproval(context.Background(), "appr_1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if a.Status != approvals.StatusPending || string(a.Token) != "token" || a.RiskAssessment != nil || a.ResolvedAt != nil {
		t.Fatalf("approval: %#v", a)
	}
}

func TestGetApprovalNotFound(t *testing.T) {
	d := &DB{conn: &fakeConn{row: fakeRow{err: sql.ErrNoRows}}}
	if _, err := d.GetApproval(context.Background(), "missing"); !errors.Is(err, approvals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveApprovalConditionalUpdate(t *testing.T) {
	conn := &fakeConn{row: approvalRow("APPROVED", dbNow.Add(time.Hour), sql.NullTime{Time: dbNow, Valid: true})}
	d := &DB{conn: conn}
	a, err := d.ResolveApproval(context.Background(), "appr_1", approvals.Resolution{
		Status: approvals.StatusApproved, Actor: "ops", Source: approvals.SourceWeb, At: dbNow,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if a.Status != approvals.StatusApproved || a.ResolvedAt == nil || !a.ResolvedAt.Equal(dbNow) {
		t.Fatalf("approval: %#v", a)
	}
	q := conn.queries[0]
	if !strings.Contains(q, "status='PENDING' AND expires_at > $6") || !strings.Contains(q, "RETURNING") {
		t.Fatalf("query must be a single conditional write: %s", q)
	}
	if len(conn.queries) != 1 {
		t.Fatalf("expected one statement, got %d", len(conn.queries))
	}
}

func TestResolveApprovalClassifiesNoMatch(t *testing.T) {
	cases := []struct {
		name    string
		current rowScanner
		check   func(error) bool
	}{
		{"not found", fakeRow{err: sql.ErrNoRows}, func(err error) bool { return errors.Is(err, approvals.ErrNotFound) }},
		{"expired", approvalRow("PENDING", dbNow, sql.NullTime{}), func(err error) bool { return errors.Is(err, approvals.ErrExpired) }},
		{"expired wins over resolved", approvalRow("APPROVED", dbNow.Add(-time.Second), sql.NullTime{}), func(err error) bool { return errors.Is(err, approvals.ErrExpired) }},
		{"already resolved", approvalRow("REJECTED", dbNow.Add(time.Hour), sql.NullTime{}), func(err error) bool {
			var already *approvals.AlreadyResolvedError
			return errors.As(err, &already) && already.Status == approvals.StatusRejected
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeConn{rows: []rowScanner{fakeRow{err: sql.ErrNoRows}, tc.current}}
			d := &DB{conn: conn}
			_, err := d.ResolveApproval(context.Background(), "appr_1", approvals.Resolution{Status: approvals.StatusApproved, At: dbNow})
			if !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestResolveApprovalStoreError(t *testing.T) {
	d := &DB{conn: &fakeConn{row: fakeRow{err: errTest}}}
	_, err := d.ResolveApproval(context.Background(), "appr_1", approvals.Resolution{Status: approvals.StatusApproved, At: dbNow})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
}
