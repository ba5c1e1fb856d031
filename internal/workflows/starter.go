package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/client"

	"autoheal/internal/incident"
)

func WorkflowID(incidentID string) string {
	return "incident-" + incidentID
}

type Starter struct {
	Client    client.Client
	TaskQueue string
	Config    Config
}

func (s *Starter) StartIncidentWorkflow(ctx context.Context, inc incident.Incident) (string, error) {
	if s == nil || s.Client == nil {
		return "", errors.New("temporal client required")
	}
	if inc.ID == "" {
		return "", errors.New("incident_id required")
	}
	input := IncidentInput{
		IncidentID: inc.ID,
		Timestamp:  inc.Timestamp,
		AlarmName:  inc.AlarmName,
		Reason:     inc.Reason,
		Config:     s.Config,
	}
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(inc.ID),
		TaskQueue: s.TaskQueue,
	}
	run, err := s.Client.ExecuteWorkflow(ctx, opts, IncidentWorkflow, input)
	if err != nil {
		return "", err
	}
	return run.GetID(), nil
}
