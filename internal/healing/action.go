package healing

import (
	"fmt"
	"strings"
)

// Action is a remediation the analysis stage may recommend. ScaleDown is
// internal: it only appears as the rollback of ScaleUp.
type Action string

const (
	ActionRestartService Action = "RESTART_SERVICE"
	ActionScaleUp        Action = "SCALE_UP"
	ActionClearCache     Action = "CLEAR_CACHE"
	ActionRebootInstance Action = "REBOOT_INSTANCE"
	ActionNone           Action = "NONE"
	ActionScaleDown      Action = "SCALE_DOWN"
)

// Recommendable lists the actions an analysis may return.
var Recommendable = []Action{
	ActionRestartService,
	ActionScaleUp,
	ActionClearCache,
	ActionRebootInstance,
	ActionNone,
}

// ParseAction accepts only recommendable actions.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Recommendable {
		if a == known {
			return a, true
		}
	}
	return "", false
}

type Mode string

const (
	ModePrimary  Mode = "PRIMARY"
	ModeFallback Mode = "FALLBACK"
	ModeRollback Mode = "ROLLBACK"
)

// ParseMode defaults an empty mode to PRIMARY.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ModePrimary:
		return ModePrimary, nil
	case ModeFallback:
		return ModeFallback, nil
	case ModeRollback:
		return ModeRollback, nil
	default:
		return "", fmt.Errorf("unknown action_type %q", s)
	}
}

type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSkipped    Status = "SKIPPED"
	StatusUnknown    Status = "UNKNOWN"
)

// Terminal reports whether no further polling can change the outcome.
func (s Status) Terminal() bool {
	return s != StatusInProgress
}

// Outcome is persisted as the incident's healing_result.
type Outcome struct {
	Status      Status `json:"status"`
	Message     string `json:"message"`
	ExecutionID string `json:"execution_id,omitempty"`
	Operation   Action `json:"operation,omitempty"`
}

// plan picks the operation to run for mode and recommended action. When no
// operation runs, ok is false and skip holds the final outcome.
func plan(mode Mode, recommended string) (op Action, skip Outcome, ok bool) {
	action, known := ParseAction(recommended)
	if !known {
		return "", Outcome{Status: StatusUnknown, Message: fmt.Sprintf("Unknown action: %s", recommended)}, false
	}
	switch mode {
	case ModeFallback:
		switch action {
		case ActionNone:
			return "", Outcome{Status: StatusSkipped, Message: "No fallback for NONE."}, false
		case ActionRestartService:
			return ActionRebootInstance, Outcome{}, true
		case ActionScaleUp, ActionClearCache, ActionRebootInstance:
			return ActionScaleUp, Outcome{}, true
		}
	case ModeRollback:
		switch action {
		case ActionScaleUp:
			return ActionScaleDown, Outcome{}, true
		case ActionRestartService, ActionClearCache, ActionRebootInstance, ActionNone:
			return "", Outcome{Status: StatusSkipped, Message: fmt.Sprintf("No rollback defined for %s", action)}, false
		}
	case ModePrimary:
		switch action {
		case ActionNone:
			return "", Outcome{Status: StatusSkipped, Message: "AI recommended no action."}, false
		case ActionRestartService, ActionScaleUp, ActionClearCache, ActionRebootInstance:
			return action, Outcome{}, true
		}
	}
	return "", Outcome{Status: StatusUnknown, Message: fmt.Sprintf("Unsupported mode %s for %s", mode, action)}, false
}
