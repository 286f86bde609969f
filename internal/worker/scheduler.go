package worker

import (
	"context"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// AccountLister selects the accounts a run covers.
type AccountLister interface {
	ListEligibleAccounts(ctx context.Context, limit int) ([]domain.AdAccount, error)
}

// Scheduler ties account selection, grouping, the pool and job finalization
// into one run.
type Scheduler struct {
	accounts AccountLister
	tracker  *Tracker
	pool     *Pool
}

// NewScheduler creates a scheduler.
func NewScheduler(accounts AccountLister, tracker *Tracker, pool *Pool) *Scheduler {
	return &Scheduler{accounts: accounts, tracker: tracker, pool: pool}
}

// Run executes a fresh job with the given params.
func (s *Scheduler) Run(ctx context.Context, params domain.JobParams) (*domain.JobRun, error) {
	accounts, err := s.accounts.ListEligibleAccounts(ctx, params.AccountLimit)
	if err != nil {
		return nil, err
	}

	job, err := s.tracker.Start(ctx, params, len(accounts))
	if err != nil {
		return nil, err
	}
	return s.process(ctx, job, accounts)
}

// Resume reopens an interrupted job and continues from its checkpoints. An
// empty jobID picks the latest non-terminal run.
func (s *Scheduler) Resume(ctx context.Context, jobID string) (*domain.JobRun, error) {
	job, err := s.tracker.Resume(ctx, jobID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListEligibleAccounts(ctx, job.Params.AccountLimit)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, job, accounts)
}

func (s *Scheduler) process(ctx context.Context, job *domain.JobRun, accounts []domain.AdAccount) (*domain.JobRun, error) {
	groups := GroupAccounts(accounts)
	logger.Info("job scheduling",
		"job_id", job.ID,
		"accounts", len(accounts),
		"groups", len(groups))

	if err := s.pool.Run(ctx, job, groups); err != nil {
		return job, err
	}
	return s.tracker.Finalize(ctx, job.ID)
}
