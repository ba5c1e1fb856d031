package risk

import (
	"math"
	"strings"

	"autoheal/internal/healing"
)

type Level string

const (
	LevelLow  Level = "LOW"
	LevelHigh Level = "HIGH"
)

const DefaultCostThreshold = 20.0

// DefaultPrices is the estimated cost in USD of running each action once.
var DefaultPrices = map[healing.Action]float64{
	healing.ActionRestartService: 0.50,
	healing.ActionScaleUp:        45.00,
	healing.ActionClearCache:     0.10,
}

type Assessment struct {
	EstimatedCost float64  `json:"estimated_cost"`
	RiskLevel     Level    `json:"risk_level"`
	Currency      string   `json:"currency"`
	Reasons       []string `json:"reasons,omitempty"`
}

func (a Assessment) RequiresApproval() bool {
	return a.RiskLevel == LevelHigh
}

// Estimator decides whether an action needs a human. It is deterministic.
type Estimator struct {
	Prices        map[healing.Action]float64
	CostThreshold float64
}

func NewEstimator(threshold float64) *Estimator {
	return &Estimator{Prices: DefaultPrices, CostThreshold: threshold}
}

func (e *Estimator) Estimate(action, alarmName string) Assessment {
	prices := e.Prices
	if prices == nil {
		prices = DefaultPrices
	}
	threshold := e.CostThreshold
	if threshold <= 0 {
		threshold = DefaultCostThreshold
	}
	a, _ := healing.ParseAction(action)
	cost := math.Round(prices[a]*100) / 100
	out := Assessment{EstimatedCost: cost, RiskLevel: LevelLow, Currency: "USD"}
	if cost > threshold {
		out.Reasons = append(out.Reasons, "estimated cost above threshold")
	}
	if a == healing.ActionRebootInstance {
		out.Reasons = append(out.Reasons, "instance reboot")
	}
	if strings.Contains(alarmName, "Spike") {
		out.Reasons = append(out.Reasons, "spike alarm")
	}
	if len(out.Reasons) > 0 {
		out.RiskLevel = LevelHigh
	}
	return out
}
