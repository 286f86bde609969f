package domain

import "time"

// JobStatus enumerates the lifecycle states of a pipeline run.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal returns true if the job is in a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Step enumerates the per-account pipeline steps, in execution order.
type Step string

const (
	StepFullSync  Step = "fullsync"
	StepNormalize Step = "normalize"
	StepFeatures  Step = "features"
	StepAnomalies Step = "anomalies"
	StepDaily     Step = "daily"
	StepBurnout   Step = "burnout"
)

// StepOrder is the fixed execution order of steps within one account.
var StepOrder = []Step{StepFullSync, StepNormalize, StepFeatures, StepAnomalies, StepDaily, StepBurnout}

// StepStatus enumerates the states of one (job, account, step) cell.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// ErrorType is the closed classification every step failure is recorded under.
type ErrorType string

const (
	ErrTypeTokenInvalid ErrorType = "token_invalid"
	ErrTypeRateLimited  ErrorType = "rate_limited"
	ErrTypeNetwork      ErrorType = "network_error"
	ErrTypeData         ErrorType = "data_error"
	ErrTypeUnknown      ErrorType = "unknown"
)

// Retryable reports whether a step failure of this type may be attempted
// again within the same run.
func (e ErrorType) Retryable() bool {
	return e == ErrTypeRateLimited || e == ErrTypeNetwork || e == ErrTypeUnknown
}

// JobRun is one pipeline run.
type JobRun struct {
	ID                string     `json:"id" db:"id"`
	Status            JobStatus  `json:"status" db:"status"`
	TotalAccounts     int        `json:"total_accounts" db:"total_accounts"`
	ProcessedAccounts int        `json:"processed_accounts" db:"processed_accounts"`
	FailedAccounts    int        `json:"failed_accounts" db:"failed_accounts"`
	SkippedAccounts   int        `json:"skipped_accounts" db:"skipped_accounts"`
	Params            JobParams  `json:"params" db:"-"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at" db:"completed_at"`
}

// JobParams are the operator-supplied knobs recorded with the run.
type JobParams struct {
	Workers           int    `json:"workers"`
	AccountLimit      int    `json:"account_limit,omitempty"`
	DryRun            bool   `json:"dry_run,omitempty"`
	SkipSteps         []Step `json:"skip_steps,omitempty"`
	InterAccountPause int    `json:"inter_account_pause_seconds"`
	LookbackWeeks     int    `json:"lookback_weeks"`
}

// AccountStepLog is one persisted (job, account, step) checkpoint. Resume
// logic reads this table exclusively; no in-memory job state survives a
// restart.
type AccountStepLog struct {
	JobID      string     `json:"job_id" db:"job_id"`
	AccountID  string     `json:"account_id" db:"account_id"`
	Step       Step       `json:"step" db:"step"`
	Status     StepStatus `json:"status" db:"status"`
	Attempts   int        `json:"attempts" db:"attempts"`
	ErrorType  ErrorType  `json:"error_type,omitempty" db:"error_type"`
	ErrorMsg   string     `json:"error_message,omitempty" db:"error_message"`
	DurationMs int64      `json:"duration_ms" db:"duration_ms"`
	WorkerID   string     `json:"worker_id" db:"worker_id"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
