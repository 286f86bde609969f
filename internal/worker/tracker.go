package worker

import (
	"context"
	"fmt"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// JobStore is the persistence surface the tracker needs. The Postgres job
// repository implements it.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.JobRun) error
	GetJob(ctx context.Context, id string) (*domain.JobRun, error)
	LatestResumable(ctx context.Context) (*domain.JobRun, error)
	UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error
	FinalizeJob(ctx context.Context, id string, status domain.JobStatus, processed, failed, skipped int) error
	EnsureStepRows(ctx context.Context, jobID, accountID string, steps []domain.Step) error
	StepStates(ctx context.Context, jobID, accountID string) (map[domain.Step]domain.AccountStepLog, error)
	MarkStepRunning(ctx context.Context, jobID, accountID string, step domain.Step, workerID string) error
	MarkStepResult(ctx context.Context, jobID, accountID string, step domain.Step,
		status domain.StepStatus, errType domain.ErrorType, errMsg string, durationMs int64) error
	ResetRunningSteps(ctx context.Context, jobID string) (int64, error)
	JobStepLogs(ctx context.Context, jobID string) ([]domain.AccountStepLog, error)
}

// Tracker owns job lifecycle state. All state lives in the store; a process
// restart resumes purely from the checkpoint table.
type Tracker struct {
	store JobStore
}

// NewTracker creates a job tracker.
func NewTracker(store JobStore) *Tracker {
	return &Tracker{store: store}
}

// Start creates a new running job.
func (t *Tracker) Start(ctx context.Context, params domain.JobParams, totalAccounts int) (*domain.JobRun, error) {
	job := &domain.JobRun{
		Status:        domain.JobRunning,
		TotalAccounts: totalAccounts,
		Params:        params,
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	logger.Info("job started", "job_id", job.ID, "total_accounts", totalAccounts, "workers", params.Workers)
	return job, nil
}

// Resume reopens an interrupted job. An empty id picks the most recent
// non-terminal run. Steps caught mid-flight go back to pending before any
// worker claims work.
func (t *Tracker) Resume(ctx context.Context, jobID string) (*domain.JobRun, error) {
	var job *domain.JobRun
	var err error
	if jobID == "" {
		job, err = t.store.LatestResumable(ctx)
	} else {
		job, err = t.store.GetJob(ctx, jobID)
	}
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("no resumable job found")
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job %s is already %s", job.ID, job.Status)
	}

	reset, err := t.store.ResetRunningSteps(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if err := t.store.UpdateJobStatus(ctx, job.ID, domain.JobRunning); err != nil {
		return nil, err
	}
	job.Status = domain.JobRunning

	logger.Info("job resumed", "job_id", job.ID, "reset_steps", reset)
	return job, nil
}

// Pause asks the job to stop after in-flight accounts drain.
func (t *Tracker) Pause(ctx context.Context, jobID string) error {
	return t.store.UpdateJobStatus(ctx, jobID, domain.JobPaused)
}

// IsPaused reads the job's current pause flag.
func (t *Tracker) IsPaused(ctx context.Context, jobID string) (bool, error) {
	job, err := t.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, fmt.Errorf("job %s not found", jobID)
	}
	return job.Status == domain.JobPaused, nil
}

// PrepareAccount seeds the account's checkpoint rows and marks skipped steps.
// Rows that already exist (resume) keep their status.
func (t *Tracker) PrepareAccount(ctx context.Context, jobID, accountID string, skip []domain.Step) error {
	if err := t.store.EnsureStepRows(ctx, jobID, accountID, domain.StepOrder); err != nil {
		return err
	}
	if len(skip) == 0 {
		return nil
	}
	states, err := t.store.StepStates(ctx, jobID, accountID)
	if err != nil {
		return err
	}
	for _, step := range skip {
		if st, ok := states[step]; ok && st.Status == domain.StepPending {
			if err := t.store.MarkStepResult(ctx, jobID, accountID, step, domain.StepSkipped, "", "", 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// AccountOutcome classifies one account's terminal state within a run.
type AccountOutcome string

const (
	OutcomeProcessed AccountOutcome = "processed"
	OutcomeFailed    AccountOutcome = "failed"
	OutcomeSkipped   AccountOutcome = "skipped"
	OutcomePending   AccountOutcome = "pending"
)

// OutcomeOf folds an account's step states into one outcome. Any failed step
// fails the account; all completed or skipped means processed; all skipped
// means skipped.
func OutcomeOf(states map[domain.Step]domain.AccountStepLog) AccountOutcome {
	allSkipped := len(states) > 0
	for _, st := range states {
		switch st.Status {
		case domain.StepFailed:
			return OutcomeFailed
		case domain.StepPending, domain.StepRunning:
			return OutcomePending
		case domain.StepCompleted:
			allSkipped = false
		}
	}
	if allSkipped {
		return OutcomeSkipped
	}
	return OutcomeProcessed
}

// Finalize folds every account's checkpoints into job counts and a terminal
// status. A job with work left (paused mid-run) keeps its non-terminal
// status; otherwise it completes even when individual accounts failed, since
// account failures are isolated by design of the checkpoint table.
func (t *Tracker) Finalize(ctx context.Context, jobID string) (*domain.JobRun, error) {
	logs, err := t.store.JobStepLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}

	byAccount := map[string]map[domain.Step]domain.AccountStepLog{}
	for _, l := range logs {
		if byAccount[l.AccountID] == nil {
			byAccount[l.AccountID] = map[domain.Step]domain.AccountStepLog{}
		}
		byAccount[l.AccountID][l.Step] = l
	}

	var processed, failed, skipped, pending int
	for _, states := range byAccount {
		switch OutcomeOf(states) {
		case OutcomeProcessed:
			processed++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		default:
			pending++
		}
	}

	if pending > 0 {
		job, err := t.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		logger.Info("job not finalized, accounts pending",
			"job_id", jobID, "pending", pending)
		return job, nil
	}

	if err := t.store.FinalizeJob(ctx, jobID, domain.JobCompleted, processed, failed, skipped); err != nil {
		return nil, err
	}
	logger.Info("job completed",
		"job_id", jobID,
		"processed", processed,
		"failed", failed,
		"skipped", skipped)
	return t.store.GetJob(ctx, jobID)
}
