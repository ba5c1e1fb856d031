package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type Type string

const (
	TypeRootCause  Type = "ROOT_CAUSE"
	TypePredictive Type = "PREDICTIVE"
	TypeReAnalysis Type = "RE_ANALYSIS"
)

func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return TypeRootCause, nil
	case TypeRootCause, TypePredictive, TypeReAnalysis:
		return t, nil
	default:
		return "", fmt.Errorf("unknown analysis_type %q", s)
	}
}

type RootCause struct {
	RootCause         string  `json:"root_cause"`
	RecommendedAction string  `json:"recommended_action"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning,omitempty"`
}

type Prediction struct {
	PredictedRisks   string  `json:"predicted_risks"`
	PreventiveAction string  `json:"preventive_action"`
	RiskScore        float64 `json:"risk_score"`
	Reasoning        string  `json:"reasoning,omitempty"`
}

type ReAnalysis struct {
	IsResolved           bool    `json:"is_resolved"`
	NewIssues            string  `json:"new_issues,omitempty"`
	ResolutionConfidence float64 `json:"resolution_confidence"`
	Reasoning            string  `json:"reasoning,omitempty"`
}

// Result holds exactly one variant, selected by Type.
type Result struct {
	Type       Type        `json:"analysis_type"`
	RootCause  *RootCause  `json:"rca,omitempty"`
	Prediction *Prediction `json:"prediction,omitempty"`
	ReAnalysis *ReAnalysis `json:"reanalysis,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
}

// Payload returns the variant alone, the shape stored on the incident.
func (r Result) Payload() json.RawMessage {
	var v any
	switch r.Type {
	case TypeRootCause:
		v = r.RootCause
	case TypePredictive:
		v = r.Prediction
	case TypeReAnalysis:
		v = r.ReAnalysis
	}
	if v == nil {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// Request is what the analysis engine receives.
type Request struct {
	IncidentID string `json:"incident_id"`
	AlarmName  string `json:"alarm_name"`
	Reason     string `json:"reason"`
	Type       Type   `json:"analysis_type"`
}

// Engine returns the raw structured object for a request. The analyzer
// validates it.
type Engine interface {
	Analyze(ctx context.Context, req Request) (json.RawMessage, error)
}

// decode validates raw against the type schema and fills the variant.
func decode(t Type, raw []byte) (Result, error) {
	raw = extractJSON(raw)
	if err := validate(t, raw); err != nil {
		return Result{}, err
	}
	res := Result{Type: t}
	var err error
	switch t {
	case TypeRootCause:
		res.RootCause = &RootCause{}
		err = json.Unmarshal(raw, res.RootCause)
	case TypePredictive:
		res.Prediction = &Prediction{}
		err = json.Unmarshal(raw, res.Prediction)
	case TypeReAnalysis:
		res.ReAnalysis = &ReAnalysis{}
		err = json.Unmarshal(raw, res.ReAnalysis)
	default:
		err = fmt.Errorf("unknown analysis_type %q", t)
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// extractJSON strips a markdown code fence around the object if present.
func extractJSON(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return []byte(strings.TrimSpace(s))
}
