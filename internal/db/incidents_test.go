package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"autoheal/internal/incident"
)

func TestCreateIncident(t *testing.T) {
	conn := &fakeConn{}
	d := &DB{conn: conn}
	err := d.CreateIncident(context.Background(), incident.Incident{
		ID: "inc_1", Timestamp: "2026-05-01T10:00:00Z", AlarmName: "HighCPU", Status: incident.StatusDetected,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.Contains(conn.execQueries[0], "ON CONFLICT (incident_id, ts) DO NOTHING") {
		t.Fatalf("query: %s", conn.execQueries[0])
	}
	if conn.execArgs[0][4] != "DETECTED" {
		t.Fatalf("status arg: %#v", conn.execArgs[0][4])
	}
}

func TestCreateIncidentCollision(t *testing.T) {
	d := &DB{conn: &fakeConn{affected: affected(0)}}
	err := d.CreateIncident(context.Background(), incident.Incident{ID: "inc_1", Timestamp: "t"})
	if !errors.Is(err, incident.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateIncidentRequiresKey(t *testing.T) {
	d := &DB{conn: &fakeConn{}}
	if err := d.CreateIncident(context.Background(), incident.Incident{ID: "inc_1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestUpdateIncidentWritesOnlyPatchedFields(t *testing.T) {
	conn := &fakeConn{}
	d := &DB{conn: conn}
	status := "SUCCESS"
	patch := incident.Patch{
		HealingStatus: &status,
		HealingResult: json.RawMessage(`{"status":"SUCCESS"}`),
	}
	if err := d.UpdateIncident(context.Background(), "inc_1", "ts1", patch); err != nil {
		t.Fatalf("err: %v", err)
	}
	q := conn.execQueries[0]
	if !strings.Contains(q, "healing_status=$1") || !strings.Contains(q, "healing_result=$2") || !strings.Contains(q, "updated_at=$3") {
		t.Fatalf("query: %s", q)
	}
	if strings.Contains(q, "analysis=") || strings.Contains(q, " status=") || strings.Contains(q, "rollback_status=") {
		t.Fatalf("unpatched column written: %s", q)
	}
	if !strings.Contains(q, "WHERE incident_id=$4 AND ts=$5") {
		t.Fatalf("where: %s", q)
	}
	args := conn.execArgs[0]
	if args[3] != "inc_1" || args[4] != "ts1" {
		t.Fatalf("args: %#v", args)
	}
}

func TestUpdateIncidentNotFound(t *testing.T) {
	d := &DB{conn: &fakeConn{affected: affected(0)}}
	err := d.UpdateIncident(context.Background(), "inc_1", "ts1", incident.StatusPatch(incident.StatusFailed))
	if !errors.Is(err, incident.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIncidentEmptyPatchChecksExistence(t *testing.T) {
	conn := &fakeConn{row: fakeRow{err: sql.ErrNoRows}}
	d := &DB{conn: conn}
	err := d.UpdateIncident(context.Background(), "inc_1", "ts1", incident.Patch{})
	if !errors.Is(err, incident.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(conn.execQueries) != 0 {
		t.Fatalf("unexpected write: %v", conn.execQueries)
	}
}

func TestUpdateIncidentExecError(t *testing.T) {
	d := &DB{conn: &fakeConn{execErr: errTest}}
	err := d.UpdateIncident(context.Background(), "inc_1", "ts1", incident.StatusPatch(incident.StatusHealing))
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
}

func TestGetIncident(t *testing.T) {
	conn := &fakeConn{row: fakeRow{values: []any{[]byte(`{"incident_id":"inc_1","timestamp":"ts1","status":"HEALING","healing_status":"IN_PROGRESS","healing_result":{"execution_id":"e1"}}`)}}}
	d := &DB{conn: conn}
	inc, err := d.GetIncident(context.Background(), "inc_1", "ts1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if inc.Status != incident.StatusHealing || inc.HealingStatus != "IN_PROGRESS" || string(inc.HealingResult) != `{"execution_id":"e1"}` {
		t.Fatalf("incident: %#v", inc)
	}
	if !strings.Contains(conn.queries[0], "jsonb_strip_nulls") {
		t.Fatalf("query: %s", conn.queries[0])
	}
}

func TestGetIncidentNotFound(t *testing.T) {
	d := &DB{conn: &fakeConn{row: fakeRow{err: sql.ErrNoRows}}}
	if _, err := d.GetIncident(context.Background(), "inc_1", "ts1"); !errors.Is(err, incident.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestIncidentOrdersByTimestamp(t *testing.T) {
	conn := &fakeConn{row: fakeRow{values: []any{[]byte(`{"incident_id":"inc_1","timestamp":"ts2"}`)}}}
	d := &DB{conn: conn}
	inc, err := d.LatestIncident(context.Background(), "inc_1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if inc.Timestamp != "ts2" {
		t.Fatalf("incident: %#v", inc)
	}
	if !strings.Contains(conn.queries[0], "ORDER BY ts DESC LIMIT 1") {
		t.Fatalf("query: %s", conn.queries[0])
	}
}

func TestListIncidentsByHealingStatus(t *testing.T) {
	conn := &fakeConn{row: fakeRow{values: []any{[]byte(`[{"incident_id":"a","timestamp":"1"},{"incident_id":"b","timestamp":"2"}]`)}}}
	d := &DB{conn: conn}
	items, err := d.ListIncidentsByHealingStatus(context.Background(), "IN_PROGRESS", 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(items) != 2 || items[1].ID != "b" {
		t.Fatalf("items: %#v", items)
	}
	args := conn.lastArgs()
	if args[0] != "IN_PROGRESS" || args[1].(int) != 50 {
		t.Fatalf("args: %#v", args)
	}
}

func TestListIncidentsScanError(t *testing.T) {
	d := &DB{conn: &fakeConn{row: fakeRow{err: errTest}}}
	if _, err := d.ListIncidentsByHealingStatus(context.Background(), "IN_PROGRESS", 5); !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
}
