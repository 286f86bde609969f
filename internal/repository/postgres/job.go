package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/adpulse/internal/domain"
)

// JobRepo persists job runs and their per-(account, step) checkpoints. Resume
// reads these tables exclusively; no scheduler state lives anywhere else.
type JobRepo struct{ db *sql.DB }

// NewJobRepo creates a Postgres-backed job repository.
func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

// CreateJob inserts a new run. A missing id is generated.
func (r *JobRepo) CreateJob(ctx context.Context, job *domain.JobRun) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal job params: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, status, total_accounts, params, started_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, job.ID, job.Status, job.TotalAccounts, params)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob fetches one run by id.
func (r *JobRepo) GetJob(ctx context.Context, id string) (*domain.JobRun, error) {
	j := &domain.JobRun{}
	var params []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, status, total_accounts, processed_accounts, failed_accounts,
		       skipped_accounts, params, started_at, completed_at
		FROM job_runs WHERE id = $1
	`, id).Scan(&j.ID, &j.Status, &j.TotalAccounts, &j.ProcessedAccounts,
		&j.FailedAccounts, &j.SkippedAccounts, &params, &j.StartedAt, &j.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Params); err != nil {
			return nil, fmt.Errorf("unmarshal job params: %w", err)
		}
	}
	return j, nil
}

// ListJobs returns recent runs, newest first.
func (r *JobRepo) ListJobs(ctx context.Context, limit int) ([]domain.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, total_accounts, processed_accounts, failed_accounts,
		       skipped_accounts, params, started_at, completed_at
		FROM job_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.JobRun
	for rows.Next() {
		var j domain.JobRun
		var params []byte
		if err := rows.Scan(&j.ID, &j.Status, &j.TotalAccounts, &j.ProcessedAccounts,
			&j.FailedAccounts, &j.SkippedAccounts, &params, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &j.Params); err != nil {
				return nil, fmt.Errorf("unmarshal job params: %w", err)
			}
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// LatestResumable returns the most recent non-terminal run, or nil.
func (r *JobRepo) LatestResumable(ctx context.Context) (*domain.JobRun, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM job_runs
		WHERE status IN ('pending', 'running', 'paused')
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest resumable job: %w", err)
	}
	return r.GetJob(ctx, id)
}

// UpdateJobStatus transitions a run's status.
func (r *JobRepo) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE job_runs SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// FinalizeJob records terminal counts and sets completed_at.
func (r *JobRepo) FinalizeJob(ctx context.Context, id string, status domain.JobStatus, processed, failed, skipped int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = $2, processed_accounts = $3, failed_accounts = $4,
		    skipped_accounts = $5, completed_at = NOW()
		WHERE id = $1
	`, id, status, processed, failed, skipped)
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	return nil
}

// EnsureStepRows seeds pending checkpoint rows for one account. Existing rows
// (a resumed run) are left untouched.
func (r *JobRepo) EnsureStepRows(ctx context.Context, jobID, accountID string, steps []domain.Step) error {
	for _, step := range steps {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO account_step_log (job_id, account_id, step, status, updated_at)
			VALUES ($1, $2, $3, 'pending', NOW())
			ON CONFLICT (job_id, account_id, step) DO NOTHING
		`, jobID, accountID, step)
		if err != nil {
			return fmt.Errorf("ensure step row %s/%s: %w", accountID, step, err)
		}
	}
	return nil
}

// StepStates returns one account's checkpoint rows for a run.
func (r *JobRepo) StepStates(ctx context.Context, jobID, accountID string) (map[domain.Step]domain.AccountStepLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, account_id, step, status, attempts, error_type, error_message,
		       duration_ms, worker_id, updated_at
		FROM account_step_log
		WHERE job_id = $1 AND account_id = $2
	`, jobID, accountID)
	if err != nil {
		return nil, fmt.Errorf("step states: %w", err)
	}
	defer rows.Close()

	out := map[domain.Step]domain.AccountStepLog{}
	for rows.Next() {
		var l domain.AccountStepLog
		if err := rows.Scan(&l.JobID, &l.AccountID, &l.Step, &l.Status, &l.Attempts,
			&l.ErrorType, &l.ErrorMsg, &l.DurationMs, &l.WorkerID, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan step state: %w", err)
		}
		out[l.Step] = l
	}
	return out, rows.Err()
}

// MarkStepRunning transitions a checkpoint to running and counts the attempt.
func (r *JobRepo) MarkStepRunning(ctx context.Context, jobID, accountID string, step domain.Step, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE account_step_log
		SET status = 'running', attempts = attempts + 1, worker_id = $4, updated_at = NOW()
		WHERE job_id = $1 AND account_id = $2 AND step = $3
	`, jobID, accountID, step, workerID)
	if err != nil {
		return fmt.Errorf("mark step running %s/%s: %w", accountID, step, err)
	}
	return nil
}

// MarkStepResult records a step's terminal outcome for this attempt.
func (r *JobRepo) MarkStepResult(ctx context.Context, jobID, accountID string, step domain.Step,
	status domain.StepStatus, errType domain.ErrorType, errMsg string, durationMs int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE account_step_log
		SET status = $4, error_type = $5, error_message = $6, duration_ms = $7, updated_at = NOW()
		WHERE job_id = $1 AND account_id = $2 AND step = $3
	`, jobID, accountID, step, status, string(errType), errMsg, durationMs)
	if err != nil {
		return fmt.Errorf("mark step result %s/%s: %w", accountID, step, err)
	}
	return nil
}

// ResetRunningSteps returns interrupted steps to pending so a resumed run can
// pick them up. Crash recovery depends on this running before any claim.
func (r *JobRepo) ResetRunningSteps(ctx context.Context, jobID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE account_step_log SET status = 'pending', updated_at = NOW()
		WHERE job_id = $1 AND status = 'running'
	`, jobID)
	if err != nil {
		return 0, fmt.Errorf("reset running steps: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// JobStepLogs returns every checkpoint row of one run, ordered for reporting.
func (r *JobRepo) JobStepLogs(ctx context.Context, jobID string) ([]domain.AccountStepLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, account_id, step, status, attempts, error_type, error_message,
		       duration_ms, worker_id, updated_at
		FROM account_step_log
		WHERE job_id = $1
		ORDER BY account_id, step
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("job step logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountStepLog
	for rows.Next() {
		var l domain.AccountStepLog
		if err := rows.Scan(&l.JobID, &l.AccountID, &l.Step, &l.Status, &l.Attempts,
			&l.ErrorType, &l.ErrorMsg, &l.DurationMs, &l.WorkerID, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan step log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
