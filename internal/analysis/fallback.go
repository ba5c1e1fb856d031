package analysis

// Fallback is the deterministic result used when the engine is unavailable
// or returns something unusable.
func Fallback(t Type, alarmName string) Result {
	switch t {
	case TypePredictive:
		return Result{Type: t, Fallback: true, Prediction: &Prediction{
			PredictedRisks:   "None detected",
			PreventiveAction: "NONE",
			RiskScore:        0,
			Reasoning:        "Fallback: No prediction available.",
		}}
	case TypeReAnalysis:
		return Result{Type: t, Fallback: true, ReAnalysis: &ReAnalysis{
			IsResolved:           true,
			NewIssues:            "None",
			ResolutionConfidence: 0.9,
			Reasoning:            "Fallback: Assumed resolved.",
		}}
	default:
		if alarmName == "HighTraffic" {
			return Result{Type: TypeRootCause, Fallback: true, RootCause: &RootCause{
				RootCause:         "High traffic load detected",
				RecommendedAction: "SCALE_UP",
				Confidence:        0.95,
				Reasoning:         "Traffic spike requires scaling up.",
			}}
		}
		return Result{Type: TypeRootCause, Fallback: true, RootCause: &RootCause{
			RootCause:         "High CPU usage detected in logs",
			RecommendedAction: "RESTART_SERVICE",
			Confidence:        0.85,
			Reasoning:         "Fallback recommendation based on alarm name.",
		}}
	}
}
