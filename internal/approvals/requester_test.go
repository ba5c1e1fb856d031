package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type fakeNotifier struct {
	sent []Approval
	err  error
}

func (f *fakeNotifier) NotifyApprovalRequest(ctx context.Context, a Approval) error {
	f.sent = append(f.sent, a)
	return f.err
}

func TestRequestCreatesPendingApproval(t *testing.T) {
	l := NewMemoryLedger()
	notifier := &fakeNotifier{}
	r := NewRequester(l, notifier, 0, nil)
	r.Now = func() time.Time { return testNow }
	r.NewID = func() string { return "appr_new" }

	got, err := r.Request(context.Background(), RequestInput{
		Token:          []byte("tok"),
		IncidentID:     "inc_1",
		Analysis:       json.RawMessage(`{"recommended_action":"REBOOT_INSTANCE"}`),
		RiskAssessment: json.RawMessage(`{"risk_level":"HIGH"}`),
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got.ID != "appr_new" || got.Status != StatusPending || got.Token != nil {
		t.Fatalf("approval: %#v", got)
	}
	if !got.ExpiresAt.Equal(testNow.Add(DefaultTTL)) {
		t.Fatalf("expires_at: %s", got.ExpiresAt)
	}
	stored, err := l.GetApproval(context.Background(), "appr_new")
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if string(stored.Token) != "tok" {
		t.Fatalf("token not stored")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Token != nil {
		t.Fatalf("notification: %#v", notifier.sent)
	}
}

func TestRequestNotifierFailureIsNotFatal(t *testing.T) {
	r := NewRequester(NewMemoryLedger(), &fakeNotifier{err: errors.New("webhook 500")}, 10*time.Minute, nil)
	got, err := r.Request(context.Background(), RequestInput{Token: []byte("tok"), IncidentID: "inc_1"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got.ExpiresAt.Sub(got.CreatedAt) != 10*time.Minute {
		t.Fatalf("ttl: %s", got.ExpiresAt.Sub(got.CreatedAt))
	}
}

func TestRequestRequiresToken(t *testing.T) {
	r := NewRequester(NewMemoryLedger(), nil, 0, nil)
	if _, err := r.Request(context.Background(), RequestInput{IncidentID: "inc_1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMemoryLedgerDuplicateCreate(t *testing.T) {
	l := NewMemoryLedger()
	a := Approval{ID: "a", Status: StatusPending}
	if err := l.CreateApproval(context.Background(), a); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := l.CreateApproval(context.Background(), a); err == nil {
		t.Fatalf("expected duplicate error")
	}
}
