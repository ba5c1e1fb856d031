package workflows

import (
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// Register adds the workflows and activities to a worker.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflow(IncidentWorkflow)
	if acts != nil {
		w.RegisterActivity(acts)
	}
}

func RegisterReplayWorkflows(replayer worker.WorkflowReplayer) {
	if replayer == nil {
		return
	}
	replayer.RegisterWorkflow(IncidentWorkflow)
}

// ReplayHistoryFromJSONFile checks that a recorded history still replays
// against the current workflow code.
func ReplayHistoryFromJSONFile(path string) error {
	replayer := worker.NewWorkflowReplayer()
	RegisterReplayWorkflows(replayer)
	var logger log.Logger = noopLogger{}
	return replayer.ReplayWorkflowHistoryFromJSONFile(logger, path)
}
