package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"autoheal/internal/incident"
	"autoheal/internal/metrics"
)

type IncidentUpdater interface {
	UpdateIncident(ctx context.Context, incidentID, timestamp string, patch incident.Patch) error
}

type Input struct {
	IncidentID string `json:"incident_id"`
	Timestamp  string `json:"timestamp"`
	AlarmName  string `json:"alarm_name"`
	Reason     string `json:"reason"`
	Type       Type   `json:"analysis_type"`
}

type Analyzer struct {
	Engine    Engine
	Incidents IncidentUpdater
	Logger    *slog.Logger
}

func NewAnalyzer(engine Engine, incidents IncidentUpdater, logger *slog.Logger) *Analyzer {
	return &Analyzer{Engine: engine, Incidents: incidents, Logger: logger}
}

// Analyze always produces a result of the requested type. Engine failures
// are replaced by Fallback. Only ROOT_CAUSE results are written to the
// incident; the returned error reports that write alone.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (Result, error) {
	t, err := ParseType(string(in.Type))
	if err != nil {
		return Result{}, err
	}
	logger := a.logger().With("incident_id", in.IncidentID, "analysis_type", string(t))
	res, err := a.run(ctx, t, in)
	if err != nil {
		metrics.AnalysisFallbacksTotal.WithLabelValues(string(t)).Inc()
		logger.Warn("analysis engine unusable, using fallback", "error", err)
		res = Fallback(t, in.AlarmName)
	}
	if t != TypeRootCause || in.IncidentID == "" || a.Incidents == nil {
		return res, nil
	}
	status := incident.StatusAnalyzed
	patch := incident.Patch{Status: &status, Analysis: res.Payload()}
	if err := a.Incidents.UpdateIncident(ctx, in.IncidentID, in.Timestamp, patch); err != nil {
		return res, fmt.Errorf("store analysis: %w", err)
	}
	logger.Info("incident analyzed", "recommended_action", res.RootCause.RecommendedAction, "fallback", res.Fallback)
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, t Type, in Input) (Result, error) {
	if a.Engine == nil {
		return Result{}, fmt.Errorf("analysis engine not configured")
	}
	raw, err := a.Engine.Analyze(ctx, Request{
		IncidentID: in.IncidentID,
		AlarmName:  in.AlarmName,
		Reason:     in.Reason,
		Type:       t,
	})
	if err != nil {
		return Result{}, err
	}
	return decode(t, raw)
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
