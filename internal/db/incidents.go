package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"autoheal/internal/incident"
)

const incidentObject = `jsonb_strip_nulls(jsonb_build_object(
		'incident_id', incident_id,
		'timestamp', ts,
		'alarm_name', alarm_name,
		'reason', reason,
		'status', status,
		'created_at', created_at,
		'analysis', analysis,
		'healing_status', healing_status,
		'healing_result', healing_result,
		'fallback_used', fallback_used,
		'rollback_status', rollback_status,
		'verification', verification
	))`

func (d *DB) CreateIncident(ctx context.Context, inc incident.Incident) error {
	if err := d.ready(); err != nil {
		return err
	}
	if inc.ID == "" || inc.Timestamp == "" {
		return errors.New("incident_id and timestamp required")
	}
	createdAt := inc.CreatedAt
	if createdAt.IsZero() {
		createdAt = d.clock().UTC()
	}
	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO incidents(incident_id, ts, alarm_name, reason, status, created_at, analysis, healing_status, healing_result, fallback_used, rollback_status, verification)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (incident_id, ts) DO NOTHING
	`, inc.ID, inc.Timestamp, inc.AlarmName, inc.Reason, string(inc.Status), createdAt,
		nullJSON(inc.Analysis), nullString(inc.HealingStatus), nullJSON(inc.HealingResult),
		inc.FallbackUsed, nullString(inc.RollbackStatus), nullJSON(inc.Verification))
	if err != nil {
		if isUniqueViolation(err) {
			return incident.ErrAlreadyExists
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return incident.ErrAlreadyExists
	}
	return nil
}

// UpdateIncident writes only the fields present in the patch.
func (d *DB) UpdateIncident(ctx context.Context, incidentID, timestamp string, patch incident.Patch) error {
	if err := d.ready(); err != nil {
		return err
	}
	if patch.Empty() {
		_, err := d.GetIncident(ctx, incidentID, timestamp)
		return err
	}
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Analysis != nil {
		set("analysis", []byte(patch.Analysis))
	}
	if patch.HealingStatus != nil {
		set("healing_status", *patch.HealingStatus)
	}
	if patch.HealingResult != nil {
		set("healing_result", []byte(patch.HealingResult))
	}
	if patch.FallbackUsed != nil {
		set("fallback_used", *patch.FallbackUsed)
	}
	if patch.RollbackStatus != nil {
		set("rollback_status", *patch.RollbackStatus)
	}
	if patch.Verification != nil {
		set("verification", []byte(patch.Verification))
	}
	set("updated_at", d.clock().UTC())
	args = append(args, incidentID, timestamp)
	query := fmt.Sprintf(`UPDATE incidents SET %s WHERE incident_id=$%d AND ts=$%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return incident.ErrNotFound
	}
	return nil
}

func (d *DB) GetIncident(ctx context.Context, incidentID, timestamp string) (incident.Incident, error) {
	if err := d.ready(); err != nil {
		return incident.Incident{}, err
	}
	row := d.conn.QueryRowContext(ctx, `SELECT `+incidentObject+` FROM incidents WHERE incident_id=$1 AND ts=$2`, incidentID, timestamp)
	return scanIncident(row)
}

func (d *DB) LatestIncident(ctx context.Context, incidentID string) (incident.Incident, error) {
	if err := d.ready(); err != nil {
		return incident.Incident{}, err
	}
	row := d.conn.QueryRowContext(ctx, `SELECT `+incidentObject+` FROM incidents WHERE incident_id=$1 ORDER BY ts DESC LIMIT 1`, incidentID)
	return scanIncident(row)
}

func (d *DB) ListIncidentsByHealingStatus(ctx context.Context, healingStatus string, limit int) ([]incident.Incident, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	query := `SELECT COALESCE(jsonb_agg(` + incidentObject + ` ORDER BY ts), '[]'::jsonb)
	FROM (
		SELECT * FROM incidents
		WHERE healing_status=$1
		ORDER BY ts
		LIMIT $2
	) AS pending`
	row := d.conn.QueryRowContext(ctx, query, healingStatus, clampLimit(limit))
	var out []byte
	if err := row.Scan(&out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	var items []incident.Incident
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func scanIncident(row rowScanner) (incident.Incident, error) {
	var out []byte
	if err := row.Scan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return incident.Incident{}, incident.ErrNotFound
		}
		return incident.Incident{}, err
	}
	var inc incident.Incident
	if err := json.Unmarshal(out, &inc); err != nil {
		return incident.Incident{}, err
	}
	return inc, nil
}
