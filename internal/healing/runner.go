package healing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autoheal/internal/metrics"
)

// JobStatus is the automation runner's view of an execution.
type JobStatus string

const (
	JobPending      JobStatus = "Pending"
	JobInProgress   JobStatus = "InProgress"
	JobWaiting      JobStatus = "Waiting"
	JobRunning      JobStatus = "Running"
	JobSucceeded    JobStatus = "Succeeded"
	JobFailed       JobStatus = "Failed"
	JobTimedOut     JobStatus = "TimedOut"
	JobCancelled    JobStatus = "Cancelled"
	JobAccessDenied JobStatus = "AccessDenied"
)

// Outcome maps a terminal job status. ok is false while the job runs.
func (s JobStatus) Outcome() (Status, bool) {
	switch s {
	case JobSucceeded:
		return StatusSuccess, true
	case JobFailed, JobTimedOut, JobCancelled, JobAccessDenied:
		return StatusFailed, true
	default:
		return StatusInProgress, false
	}
}

// Runner starts remediation documents and reports their status.
type Runner interface {
	Start(ctx context.Context, document string, params map[string]string) (string, error)
	Status(ctx context.Context, executionID string) (JobStatus, error)
}

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxPolls     = 12
)

// Poller waits for an execution for at most MaxPolls status reads.
type Poller struct {
	Runner   Runner
	Interval time.Duration
	MaxPolls int
	Sleep    func(ctx context.Context, d time.Duration) error
	Logger   *slog.Logger
}

// Await never blocks past Interval*MaxPolls. Status read errors count as a
// poll of a still running job.
func (p Poller) Await(ctx context.Context, executionID string) Outcome {
	maxPolls := p.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var last JobStatus
	for attempt := 1; attempt <= maxPolls; attempt++ {
		status, err := p.Runner.Status(ctx, executionID)
		if err != nil {
			metrics.RunnerPollsTotal.WithLabelValues("error").Inc()
			logger.Warn("runner status failed", "execution_id", executionID, "attempt", attempt, "error", err)
		} else {
			metrics.RunnerPollsTotal.WithLabelValues(string(status)).Inc()
			last = status
			if outcome, done := status.Outcome(); done {
				return Outcome{
					Status:      outcome,
					Message:     fmt.Sprintf("Execution %s finished with status %s", executionID, status),
					ExecutionID: executionID,
				}
			}
		}
		if attempt == maxPolls {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			break
		}
	}
	if last == "" {
		last = JobRunning
	}
	return Outcome{
		Status:      StatusInProgress,
		Message:     fmt.Sprintf("Execution %s still %s after %d polls", executionID, last, maxPolls),
		ExecutionID: executionID,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
