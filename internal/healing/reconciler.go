package healing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"autoheal/internal/incident"
)

type IncidentLister interface {
	incident.Lister
	IncidentUpdater
}

// Reconciler re-polls incidents whose last healing outcome was IN_PROGRESS.
// It is the out-of-band caller for executions that outlived their workflow's
// polling window.
type Reconciler struct {
	Incidents  IncidentLister
	Dispatcher *Dispatcher
	Batch      int
	Logger     *slog.Logger
}

type ReconcileReport struct {
	Scanned  int
	Resolved int
	Pending  int
	Skipped  int
}

func NewReconciler(incidents IncidentLister, dispatcher *Dispatcher, batch int, logger *slog.Logger) *Reconciler {
	return &Reconciler{Incidents: incidents, Dispatcher: dispatcher, Batch: batch, Logger: logger}
}

func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if r.Incidents == nil || r.Dispatcher == nil {
		return report, errors.New("reconciler not configured")
	}
	items, err := r.Incidents.ListIncidentsByHealingStatus(ctx, string(StatusInProgress), r.Batch)
	if err != nil {
		return report, err
	}
	for _, inc := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		logger := r.logger().With("incident_id", inc.ID)
		var prev Outcome
		if err := json.Unmarshal(inc.HealingResult, &prev); err != nil || prev.ExecutionID == "" {
			logger.Warn("in-progress incident has no execution id", "error", err)
			report.Skipped++
			continue
		}
		req := Request{
			IncidentID: inc.ID,
			Timestamp:  inc.Timestamp,
			Mode:       modeOf(inc),
			Action:     string(prev.Operation),
		}
		outcome := r.Dispatcher.Resume(ctx, req, prev.ExecutionID, prev.Operation)
		if !outcome.Status.Terminal() {
			report.Pending++
			continue
		}
		report.Resolved++
		if final, ok := finalStatus(req.Mode, outcome.Status); ok {
			if err := r.Incidents.UpdateIncident(ctx, inc.ID, inc.Timestamp, incident.StatusPatch(final)); err != nil {
				logger.Error("incident status update failed", "error", err)
			}
		}
	}
	if report.Scanned > 0 {
		r.logger().Info("reconcile pass finished", "scanned", report.Scanned, "resolved", report.Resolved, "pending", report.Pending, "skipped", report.Skipped)
	}
	return report, nil
}

func modeOf(inc incident.Incident) Mode {
	switch {
	case inc.RollbackStatus == string(StatusInProgress):
		return ModeRollback
	case inc.FallbackUsed:
		return ModeFallback
	default:
		return ModePrimary
	}
}

// finalStatus maps a completed out-of-band execution to an incident status.
// A finished rollback leaves the incident FAILED either way.
func finalStatus(mode Mode, s Status) (incident.Status, bool) {
	switch {
	case mode == ModeRollback:
		return incident.StatusFailed, true
	case s == StatusSuccess:
		return incident.StatusResolved, true
	case s == StatusFailed:
		return incident.StatusFailed, true
	default:
		return "", false
	}
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
