package incident

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCreateCollision(t *testing.T) {
	s := NewMemoryStore()
	inc := Incident{ID: "inc_1", Timestamp: "2026-01-01T00:00:00Z", Status: StatusDetected}
	if err := s.CreateIncident(context.Background(), inc); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := s.CreateIncident(context.Background(), inc); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	inc.Timestamp = "2026-01-01T00:00:01Z"
	if err := s.CreateIncident(context.Background(), inc); err != nil {
		t.Fatalf("same id, new timestamp should be allowed: %v", err)
	}
}

func TestMemoryStoreUpdateNotFound(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateIncident(context.Background(), "missing", "ts", StatusPatch(StatusHealing))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdateKeepsUnrelatedFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	inc := Incident{ID: "inc_1", Timestamp: "ts", Status: StatusDetected}
	if err := s.CreateIncident(ctx, inc); err != nil {
		t.Fatalf("err: %v", err)
	}
	analyzed := StatusAnalyzed
	if err := s.UpdateIncident(ctx, "inc_1", "ts", Patch{Status: &analyzed, Analysis: json.RawMessage(`{"recommended_action":"SCALE_UP"}`)}); err != nil {
		t.Fatalf("err: %v", err)
	}
	healing := "SUCCESS"
	if err := s.UpdateIncident(ctx, "inc_1", "ts", Patch{HealingStatus: &healing, HealingResult: json.RawMessage(`{"status":"SUCCESS"}`)}); err != nil {
		t.Fatalf("err: %v", err)
	}
	got, err := s.GetIncident(ctx, "inc_1", "ts")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(got.Analysis) != `{"recommended_action":"SCALE_UP"}` {
		t.Fatalf("analysis clobbered: %s", got.Analysis)
	}
	if got.Status != StatusAnalyzed || got.HealingStatus != "SUCCESS" {
		t.Fatalf("unexpected incident: %#v", got)
	}
}

func TestMemoryStoreLatest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateIncident(ctx, Incident{ID: "inc_1", Timestamp: "2026-01-01T00:00:00Z", AlarmName: "old"})
	_ = s.CreateIncident(ctx, Incident{ID: "inc_1", Timestamp: "2026-01-02T00:00:00Z", AlarmName: "new"})
	got, err := s.LatestIncident(ctx, "inc_1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got.AlarmName != "new" {
		t.Fatalf("latest: %#v", got)
	}
	if _, err := s.LatestIncident(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreListByHealingStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateIncident(ctx, Incident{ID: "a", Timestamp: "1", HealingStatus: "IN_PROGRESS"})
	_ = s.CreateIncident(ctx, Incident{ID: "b", Timestamp: "2", HealingStatus: "SUCCESS"})
	_ = s.CreateIncident(ctx, Incident{ID: "c", Timestamp: "3", HealingStatus: "IN_PROGRESS"})
	got, err := s.ListIncidentsByHealingStatus(ctx, "IN_PROGRESS", 10)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("list: %#v", got)
	}
	got, _ = s.ListIncidentsByHealingStatus(ctx, "IN_PROGRESS", 1)
	if len(got) != 1 {
		t.Fatalf("limit ignored: %d", len(got))
	}
}

func TestPatchEmpty(t *testing.T) {
	if !(Patch{}).Empty() {
		t.Fatalf("zero patch should be empty")
	}
	if StatusPatch(StatusFailed).Empty() {
		t.Fatalf("status patch should not be empty")
	}
}

type fakeStarter struct {
	started []Incident
	err     error
}

func (f *fakeStarter) StartIncidentWorkflow(ctx context.Context, inc Incident) (string, error) {
	f.started = append(f.started, inc)
	if f.err != nil {
		return "", f.err
	}
	return "incident-" + inc.ID, nil
}

func fixedDetector(store Store, starter WorkflowStarter) *Detector {
	d := NewDetector(store, starter, nil)
	d.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	d.NewID = func() string { return "inc_fixed" }
	return d
}

func TestDetectCreatesIncident(t *testing.T) {
	store := NewMemoryStore()
	starter := &fakeStarter{}
	d := fixedDetector(store, starter)
	ev, err := ParseAlarmEvent([]byte(`{"detail":{"alarmName":"HighCPU","state":{"value":"ALARM","reason":"cpu > 90","timestamp":"2026-03-01T11:59:00Z"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	inc, ok, err := d.Detect(context.Background(), ev)
	if err != nil || !ok {
		t.Fatalf("detect: ok=%v err=%v", ok, err)
	}
	if inc.ID != "inc_fixed" || inc.Timestamp != "2026-03-01T11:59:00Z" || inc.Status != StatusDetected {
		t.Fatalf("incident: %#v", inc)
	}
	stored, err := store.GetIncident(context.Background(), inc.ID, inc.Timestamp)
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if stored.AlarmName != "HighCPU" || stored.Reason != "cpu > 90" {
		t.Fatalf("stored: %#v", stored)
	}
	if len(starter.started) != 1 {
		t.Fatalf("workflow not started")
	}
}

func TestDetectDefaultsTimestamp(t *testing.T) {
	d := fixedDetector(NewMemoryStore(), nil)
	inc, ok, err := d.Detect(context.Background(), AlarmEvent{Detail: AlarmDetail{AlarmName: "x", State: AlarmState{Value: "ALARM"}}})
	if err != nil || !ok {
		t.Fatalf("detect: ok=%v err=%v", ok, err)
	}
	if inc.Timestamp != "2026-03-01T12:00:00Z" {
		t.Fatalf("timestamp: %s", inc.Timestamp)
	}
}

func TestDetectIgnoresNonAlarm(t *testing.T) {
	store := NewMemoryStore()
	starter := &fakeStarter{}
	d := fixedDetector(store, starter)
	_, ok, err := d.Detect(context.Background(), AlarmEvent{Detail: AlarmDetail{State: AlarmState{Value: "OK"}}})
	if err != nil || ok {
		t.Fatalf("expected ignore, ok=%v err=%v", ok, err)
	}
	if len(starter.started) != 0 {
		t.Fatalf("workflow should not start")
	}
}

func TestDetectStarterError(t *testing.T) {
	d := fixedDetector(NewMemoryStore(), &fakeStarter{err: errors.New("temporal down")})
	inc, ok, err := d.Detect(context.Background(), AlarmEvent{Detail: AlarmDetail{State: AlarmState{Value: "ALARM"}}})
	if err == nil || !ok {
		t.Fatalf("expected start error with recorded incident, ok=%v err=%v", ok, err)
	}
	if inc.ID == "" {
		t.Fatalf("incident should still be returned")
	}
}

func TestParseAlarmEventInvalid(t *testing.T) {
	if _, err := ParseAlarmEvent([]byte("{")); err == nil {
		t.Fatalf("expected error")
	}
}
