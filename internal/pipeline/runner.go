// Package pipeline drives a bake plan end to end: repo and prompt setup,
// stimulus and rollout generation per target, then the bake itself. Steps
// run strictly in sequence because each depends on server-side state left
// by the previous one.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/breadml/bakectl/internal/bakery"
	"github.com/breadml/bakectl/internal/journal"
	"github.com/breadml/bakectl/internal/plan"
)

// outputSampleLimit is how many generated items are fetched for review
// after each job completes.
const outputSampleLimit = 3

// Bakery is the subset of the bakery API the runner drives.
type Bakery interface {
	ListRepos(ctx context.Context) (bakery.RepoList, error)
	SetRepo(ctx context.Context, name, baseModel string) error
	SetPrompt(ctx context.Context, repo, name string, messages []bakery.Message, tools json.RawMessage) error
	SetTarget(ctx context.Context, repo, name, template string, overrides bakery.TargetOverrides) error
	RunStim(ctx context.Context, repo, target string) error
	StimStatus(ctx context.Context, repo, target string) (bakery.JobStatus, error)
	StimOutput(ctx context.Context, repo, target string, limit int) (bakery.JobOutput, error)
	RunRollout(ctx context.Context, repo, target string) error
	RolloutStatus(ctx context.Context, repo, target string) (bakery.JobStatus, error)
	RolloutOutput(ctx context.Context, repo, target string, limit int) (bakery.JobOutput, error)
	SetBake(ctx context.Context, repo, name, modelName, template string, overrides bakery.BakeOverrides) error
	RunBake(ctx context.Context, repo, name string) error
	BakeStatus(ctx context.Context, repo, name string) (bakery.JobStatus, error)
}

// Runner executes bake plans against the bakery, recording progress in the
// local journal. Journal may be nil; runs are then not recorded.
type Runner struct {
	Bakery  Bakery
	Poller  bakery.Poller
	Journal *journal.Store
	Logger  *slog.Logger

	// WaitForBake makes Run block until the bake's training job reaches a
	// terminal state instead of returning right after submission.
	WaitForBake bool

	// OnSample receives fetched output samples for display; may be nil.
	OnSample func(jobType, target string, samples []string)
}

// Result summarizes a completed run.
type Result struct {
	RunID string
	Repo  string
	Bake  string

	// BakeStatus is set only when WaitForBake was enabled.
	BakeStatus bakery.JobStatus
}

// Run executes the plan. The first failing step aborts the run; output
// sampling failures are logged and skipped since they do not affect the
// server-side pipeline.
func (r *Runner) Run(ctx context.Context, p plan.Plan, planPath string) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if r.Poller.MaxAttempts == 0 {
		r.Poller = bakery.NewPoller()
	}
	r.Poller.Logger = logger

	res := Result{
		RunID: uuid.NewString(),
		Repo:  p.Repo,
		Bake:  p.Bake.Name,
	}

	r.recordRun(logger, journal.Run{
		ID:        res.RunID,
		Repo:      p.Repo,
		Bake:      p.Bake.Name,
		PlanPath:  planPath,
		StartedAt: time.Now().UTC(),
	})

	if err := r.execute(ctx, logger, p, &res); err != nil {
		r.finishRun(logger, res.RunID, journal.RunFailed, err.Error())
		return Result{}, err
	}

	r.finishRun(logger, res.RunID, journal.RunCompleted, "")
	return res, nil
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, p plan.Plan, res *Result) error {
	// Informational only; the run proceeds even if the listing fails.
	if list, err := r.Bakery.ListRepos(ctx); err != nil {
		logger.Warn("listing repos failed", "error", err)
	} else {
		names := make([]string, len(list.Items))
		for i, repo := range list.Items {
			names[i] = repo.Name
		}
		logger.Info("existing repos", "repos", names)
	}

	logger.Info("setting up repo", "repo", p.Repo)
	if err := r.Bakery.SetRepo(ctx, p.Repo, p.BaseModel); err != nil {
		return err
	}
	r.recordEvent(logger, res.RunID, "set_repo", "", "ok", 0, p.Repo)

	for _, prompt := range p.Prompts {
		logger.Info("setting prompt", "prompt", prompt.Name)
		if err := r.Bakery.SetPrompt(ctx, p.Repo, prompt.Name, prompt.Messages, prompt.Tools); err != nil {
			return err
		}
		r.recordEvent(logger, res.RunID, "set_prompt", "", "ok", 0, prompt.Name)
	}

	for _, target := range p.Targets {
		logger.Info("setting target", "target", target.Name, "regularization", target.Regularization())
		if err := r.Bakery.SetTarget(ctx, p.Repo, target.Name, target.TemplateOrDefault(), target.Overrides(p.Bake.ModelName)); err != nil {
			return err
		}
		r.recordEvent(logger, res.RunID, "set_target", target.Name, "ok", 0, "")
	}

	for _, target := range p.Targets {
		if err := r.generateTarget(ctx, logger, p.Repo, target.Name, res.RunID); err != nil {
			return err
		}
	}

	logger.Info("setting bake", "bake", p.Bake.Name, "model", p.Bake.ModelName)
	if err := r.Bakery.SetBake(ctx, p.Repo, p.Bake.Name, p.Bake.ModelName, p.Bake.TemplateOrDefault(), p.BakeOverrides()); err != nil {
		return err
	}
	r.recordEvent(logger, res.RunID, "set_bake", "", "ok", 0, p.Bake.Name)

	logger.Info("starting bake", "bake", p.Bake.Name)
	if err := r.Bakery.RunBake(ctx, p.Repo, p.Bake.Name); err != nil {
		return err
	}
	r.recordEvent(logger, res.RunID, "run_bake", "", "ok", 0, p.Bake.Name)

	if !r.WaitForBake {
		return nil
	}

	status, err := r.Poller.Wait(ctx, "bake", func(ctx context.Context) (bakery.JobStatus, error) {
		return r.Bakery.BakeStatus(ctx, p.Repo, p.Bake.Name)
	})
	if err != nil {
		r.recordEvent(logger, res.RunID, "bake", "", "failed", 0, err.Error())
		return err
	}
	r.recordEvent(logger, res.RunID, "bake", "", status.Status, status.Lines, "")
	res.BakeStatus = status
	return nil
}

// generateTarget runs the stim job followed by the rollout job for one
// target, sampling output after each.
func (r *Runner) generateTarget(ctx context.Context, logger *slog.Logger, repo, target, runID string) error {
	logger.Info("starting stim job", "target", target)
	if err := r.Bakery.RunStim(ctx, repo, target); err != nil {
		return err
	}

	status, err := r.Poller.Wait(ctx, "stim", func(ctx context.Context) (bakery.JobStatus, error) {
		return r.Bakery.StimStatus(ctx, repo, target)
	})
	if err != nil {
		r.recordEvent(logger, runID, "stim", target, "failed", 0, err.Error())
		return fmt.Errorf("target %s: %w", target, err)
	}
	r.recordEvent(logger, runID, "stim", target, status.Status, status.Lines, "")

	r.sample(ctx, logger, "stim", repo, target, func(ctx context.Context) (bakery.JobOutput, error) {
		return r.Bakery.StimOutput(ctx, repo, target, outputSampleLimit)
	})

	logger.Info("starting rollout job", "target", target)
	if err := r.Bakery.RunRollout(ctx, repo, target); err != nil {
		return err
	}

	status, err = r.Poller.Wait(ctx, "rollout", func(ctx context.Context) (bakery.JobStatus, error) {
		return r.Bakery.RolloutStatus(ctx, repo, target)
	})
	if err != nil {
		r.recordEvent(logger, runID, "rollout", target, "failed", 0, err.Error())
		return fmt.Errorf("target %s: %w", target, err)
	}
	r.recordEvent(logger, runID, "rollout", target, status.Status, status.Lines, "")

	r.sample(ctx, logger, "rollout", repo, target, func(ctx context.Context) (bakery.JobOutput, error) {
		return r.Bakery.RolloutOutput(ctx, repo, target, outputSampleLimit)
	})

	return nil
}

// sample fetches a few generated items for review. Failures here are
// warnings: the data exists server-side regardless.
func (r *Runner) sample(ctx context.Context, logger *slog.Logger, jobType, repo, target string, fetch func(context.Context) (bakery.JobOutput, error)) {
	out, err := fetch(ctx)
	if err != nil {
		logger.Warn("fetching output sample failed", "job", jobType, "target", target, "error", err)
		return
	}
	if r.OnSample != nil {
		r.OnSample(jobType, target, out.Output)
	}
}

func (r *Runner) recordRun(logger *slog.Logger, run journal.Run) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.CreateRun(run); err != nil {
		logger.Warn("recording run failed", "error", err)
	}
}

func (r *Runner) finishRun(logger *slog.Logger, id, status, errMsg string) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.FinishRun(id, status, errMsg); err != nil && !errors.Is(err, journal.ErrNotFound) {
		logger.Warn("finishing run failed", "error", err)
	}
}

func (r *Runner) recordEvent(logger *slog.Logger, runID, step, target, status string, lines int, detail string) {
	if r.Journal == nil {
		return
	}
	ev := journal.Event{
		ID:        uuid.NewString(),
		RunID:     runID,
		Step:      step,
		Target:    target,
		Status:    status,
		Lines:     lines,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Journal.AppendEvent(ev); err != nil {
		logger.Warn("recording event failed", "step", step, "error", err)
	}
}
