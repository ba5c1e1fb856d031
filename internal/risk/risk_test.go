package risk

import "testing"

func TestEstimate(t *testing.T) {
	e := NewEstimator(0)
	cases := []struct {
		action string
		alarm  string
		cost   float64
		level  Level
	}{
		{"RESTART_SERVICE", "HighCPU", 0.50, LevelLow},
		{"CLEAR_CACHE", "CacheMiss", 0.10, LevelLow},
		{"SCALE_UP", "HighTraffic", 45.00, LevelHigh},
		{"REBOOT_INSTANCE", "HighCPU", 0, LevelHigh},
		{"RESTART_SERVICE", "TrafficSpike", 0.50, LevelHigh},
		{"NONE", "HighCPU", 0, LevelLow},
		{"WHATEVER", "HighCPU", 0, LevelLow},
	}
	for _, tc := range cases {
		got := e.Estimate(tc.action, tc.alarm)
		if got.EstimatedCost != tc.cost || got.RiskLevel != tc.level || got.Currency != "USD" {
			t.Fatalf("%s/%s: %#v", tc.action, tc.alarm, got)
		}
	}
}

func TestEstimateThreshold(t *testing.T) {
	e := NewEstimator(50)
	if got := e.Estimate("SCALE_UP", "HighTraffic"); got.RequiresApproval() {
		t.Fatalf("45 <= 50 should be low risk: %#v", got)
	}
}

func TestEstimateDeterministic(t *testing.T) {
	e := NewEstimator(0)
	a := e.Estimate("SCALE_UP", "x")
	for i := 0; i < 10; i++ {
		if b := e.Estimate("SCALE_UP", "x"); b.EstimatedCost != a.EstimatedCost {
			t.Fatalf("cost drifted: %v != %v", b.EstimatedCost, a.EstimatedCost)
		}
	}
}
