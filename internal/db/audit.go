package db

import (
	"context"
	"errors"

	"autoheal/internal/audit"
)

func (d *DB) InsertAuditEntry(ctx context.Context, entry audit.Entry) (string, error) {
	if err := d.ready(); err != nil {
		return "", err
	}
	if entry.EventType == "" {
		return "", errors.New("event_type required")
	}
	details := []byte(entry.Details)
	if len(details) == 0 {
		details = []byte(`{}`)
	}
	id := newID("audit")
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO audit_entries(audit_id, incident_id, ts, event_type, action_type, details, component)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, id, entry.IncidentID, entry.Timestamp, entry.EventType, nullString(entry.ActionType), details, entry.Component)
	if err != nil {
		return "", err
	}
	return id, nil
}
