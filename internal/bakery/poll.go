package bakery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrJobFailed is returned by Poller.Wait when the remote job reaches the
// failed terminal state.
var ErrJobFailed = errors.New("job failed")

// ErrPollTimeout is returned by Poller.Wait when the attempt budget is
// exhausted without the job reaching a terminal state.
var ErrPollTimeout = errors.New("polling timed out")

const (
	// DefaultMaxAttempts at DefaultInterval gives a 10-minute budget.
	DefaultMaxAttempts = 120
	DefaultInterval    = 5 * time.Second

	// progressEvery controls progress log volume: one line per six
	// attempts instead of one per attempt.
	progressEvery = 6
)

// StatusFunc checks the status of a remote job.
type StatusFunc func(ctx context.Context) (JobStatus, error)

// Poller repeatedly invokes a status check at a fixed cadence until the job
// reports completion, failure, or the attempt budget runs out. There is no
// backoff or jitter, and a status-check error aborts polling immediately:
// only terminal job states are awaited, transient errors are not retried.
type Poller struct {
	MaxAttempts int
	Interval    time.Duration
	Logger      *slog.Logger
}

// NewPoller returns a Poller with the default attempt budget.
func NewPoller() Poller {
	return Poller{
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
	}
}

// Wait blocks until check reports a terminal status, an error occurs, ctx is
// cancelled, or MaxAttempts checks have been made. jobType is a label used
// in log lines ("stim", "rollout", "bake").
//
// On completion the final status is returned. A failed job yields
// ErrJobFailed, an exhausted budget yields ErrPollTimeout, and a check
// error is returned as-is; in all three cases the JobStatus is zero.
func (p Poller) Wait(ctx context.Context, jobType string, check StatusFunc) (JobStatus, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("polling job status", "job", jobType)

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := check(ctx)
		if err != nil {
			logger.Error("status check failed", "job", jobType, "error", err)
			return JobStatus{}, fmt.Errorf("checking %s status: %w", jobType, err)
		}

		switch status.Status {
		case StatusComplete:
			logger.Info("job complete", "job", jobType, "lines", status.Lines)
			return status, nil
		case StatusFailed:
			logger.Error("job failed, check your configuration", "job", jobType)
			return JobStatus{}, fmt.Errorf("%s: %w", jobType, ErrJobFailed)
		}

		if attempt%progressEvery == 0 {
			logger.Info("job status", "job", jobType, "status", status.Status,
				"attempt", fmt.Sprintf("%d/%d", attempt, p.MaxAttempts))
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return JobStatus{}, ctx.Err()
		case <-time.After(p.Interval):
		}
	}

	budget := time.Duration(p.MaxAttempts) * p.Interval
	logger.Error("job timed out", "job", jobType, "budget", budget)
	return JobStatus{}, fmt.Errorf("%s did not finish within %s: %w", jobType, budget, ErrPollTimeout)
}
