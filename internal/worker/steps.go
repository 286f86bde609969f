package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/ads"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// Syncer runs the ingestion steps.
type Syncer interface {
	SyncAccount(ctx context.Context, account domain.AdAccount) error
	DailyEnrich(ctx context.Context, account domain.AdAccount) error
}

// AccountStep runs one derived step over an account window. The normalize,
// features, anomalies and burnout services all satisfy it.
type AccountStep func(ctx context.Context, accountID string, since time.Time) error

// StepRunner drives one account through the step sequence, applying the
// retry policy and recording every outcome in the checkpoint table.
type StepRunner struct {
	tracker *Tracker
	store   JobStore
	backoff *GroupBackoff

	sync      Syncer
	normalize AccountStep
	features  AccountStep
	anomalies AccountStep
	burnout   AccountStep

	maxAttempts  int
	retrySpacing time.Duration
	groupBackoff time.Duration
	since        time.Time
}

// StepRunnerConfig wires a StepRunner.
type StepRunnerConfig struct {
	Tracker *Tracker
	Store   JobStore
	Backoff *GroupBackoff

	Sync      Syncer
	Normalize AccountStep
	Features  AccountStep
	Anomalies AccountStep
	Burnout   AccountStep

	MaxAttempts  int
	RetrySpacing time.Duration
	GroupBackoff time.Duration
	Since        time.Time
}

// NewStepRunner creates a step runner.
func NewStepRunner(cfg StepRunnerConfig) *StepRunner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &StepRunner{
		tracker:      cfg.Tracker,
		store:        cfg.Store,
		backoff:      cfg.Backoff,
		sync:         cfg.Sync,
		normalize:    cfg.Normalize,
		features:     cfg.Features,
		anomalies:    cfg.Anomalies,
		burnout:      cfg.Burnout,
		maxAttempts:  cfg.MaxAttempts,
		retrySpacing: cfg.RetrySpacing,
		groupBackoff: cfg.GroupBackoff,
		since:        cfg.Since,
	}
}

// RunAccount executes the account's remaining steps in order. A step failure
// fails the account: the failed step keeps its error and the steps behind it
// are marked skipped, so the run never leaves pending rows behind. Other
// accounts are unaffected.
func (r *StepRunner) RunAccount(ctx context.Context, job *domain.JobRun, group string, account domain.AdAccount, workerID string) error {
	if err := r.tracker.PrepareAccount(ctx, job.ID, account.ID, job.Params.SkipSteps); err != nil {
		return err
	}
	states, err := r.store.StepStates(ctx, job.ID, account.ID)
	if err != nil {
		return err
	}

	for i, step := range domain.StepOrder {
		st, ok := states[step]
		if ok && (st.Status == domain.StepCompleted || st.Status == domain.StepSkipped) {
			continue
		}

		if job.Params.DryRun {
			logger.Info("dry run, step skipped", "job_id", job.ID, "account_id", account.ID, "step", string(step))
			if err := r.store.MarkStepResult(ctx, job.ID, account.ID, step, domain.StepSkipped, "", "", 0); err != nil {
				return err
			}
			continue
		}

		if err := r.runStep(ctx, job, group, account, step, workerID); err != nil {
			r.skipRemaining(ctx, job.ID, account.ID, domain.StepOrder[i+1:], states)
			return err
		}
	}
	return nil
}

// runStep executes one step with retries. Rate limits back off the whole
// tenant group; the group is sequential within one worker, so sleeping here
// holds every account behind the same bucket.
func (r *StepRunner) runStep(ctx context.Context, job *domain.JobRun, group string, account domain.AdAccount, step domain.Step, workerID string) error {
	for attempt := 1; ; attempt++ {
		if err := r.backoff.Wait(ctx, group); err != nil {
			return err
		}
		if err := r.store.MarkStepRunning(ctx, job.ID, account.ID, step, workerID); err != nil {
			return err
		}

		start := time.Now()
		err := r.dispatch(ctx, account, step)
		elapsed := time.Since(start).Milliseconds()

		if err == nil {
			return r.store.MarkStepResult(ctx, job.ID, account.ID, step, domain.StepCompleted, "", "", elapsed)
		}

		errType := ads.Classify(err)
		logger.Warn("step attempt failed",
			"job_id", job.ID,
			"account_id", account.ID,
			"step", string(step),
			"attempt", attempt,
			"error_type", string(errType),
			"error", err.Error())

		if errType == domain.ErrTypeRateLimited {
			r.backoff.Set(ctx, group, r.rateLimitDelay(err))
		}

		if !errType.Retryable() || attempt >= r.maxAttempts {
			if markErr := r.store.MarkStepResult(ctx, job.ID, account.ID, step,
				domain.StepFailed, errType, err.Error(), elapsed); markErr != nil {
				return markErr
			}
			return fmt.Errorf("step %s: %w", step, err)
		}

		if errType != domain.ErrTypeRateLimited && r.retrySpacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retrySpacing):
			}
		}
	}
}

func (r *StepRunner) dispatch(ctx context.Context, account domain.AdAccount, step domain.Step) error {
	switch step {
	case domain.StepFullSync:
		return r.sync.SyncAccount(ctx, account)
	case domain.StepDaily:
		return r.sync.DailyEnrich(ctx, account)
	case domain.StepNormalize:
		return r.normalize(ctx, account.ID, r.since)
	case domain.StepFeatures:
		return r.features(ctx, account.ID, r.since)
	case domain.StepAnomalies:
		return r.anomalies(ctx, account.ID, r.since)
	case domain.StepBurnout:
		return r.burnout(ctx, account.ID, r.since)
	default:
		return fmt.Errorf("unknown step %q", step)
	}
}

// rateLimitDelay prefers the platform's own retry hint over the configured
// group backoff.
func (r *StepRunner) rateLimitDelay(err error) time.Duration {
	var apiErr *ads.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return r.groupBackoff
}

func (r *StepRunner) skipRemaining(ctx context.Context, jobID, accountID string, rest []domain.Step, states map[domain.Step]domain.AccountStepLog) {
	for _, step := range rest {
		if st, ok := states[step]; ok && st.Status != domain.StepPending {
			continue
		}
		if err := r.store.MarkStepResult(ctx, jobID, accountID, step, domain.StepSkipped, "", "", 0); err != nil {
			logger.Warn("failed to skip remaining step",
				"job_id", jobID, "account_id", accountID, "step", string(step), "error", err.Error())
		}
	}
}
