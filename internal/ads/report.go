package ads

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// ReportState is the pipeline-side lifecycle of one async report job. The
// lifecycle is an explicit state machine so timeout and retry behavior stays
// auditable:
//
//	Submitted -> Polling -> Ready -> Fetched
//	                    \-> Failed (platform failure or poll timeout)
type ReportState string

const (
	StateSubmitted ReportState = "submitted"
	StatePolling   ReportState = "polling"
	StateReady     ReportState = "ready"
	StateFetched   ReportState = "fetched"
	StateFailed    ReportState = "failed"
)

// ReportRun tracks one async report job through its lifecycle.
type ReportRun struct {
	ReportID    string
	State       ReportState
	PollCount   int
	SubmittedAt time.Time
}

// Runner drives async report jobs to completion against any API implementation.
type Runner struct {
	api          API
	pollInterval time.Duration
	maxPolls     int
}

// NewRunner creates a report runner. maxPolls caps polling before the run is
// declared failed with a timeout.
func NewRunner(api API, pollInterval time.Duration, maxPolls int) *Runner {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 15
	}
	return &Runner{api: api, pollInterval: pollInterval, maxPolls: maxPolls}
}

// Run submits a report, polls it to readiness and fetches its rows. A poll
// timeout surfaces as network_error so the step retry policy treats it as
// transient.
func (r *Runner) Run(ctx context.Context, account domain.AdAccount, window ReportWindow, granularity Granularity) ([]ReportRow, error) {
	run := &ReportRun{State: StateSubmitted, SubmittedAt: time.Now()}

	id, err := r.api.SubmitReport(ctx, account, window, granularity)
	if err != nil {
		run.State = StateFailed
		return nil, err
	}
	run.ReportID = id
	run.State = StatePolling

	for run.State == StatePolling {
		if run.PollCount >= r.maxPolls {
			run.State = StateFailed
			return nil, &APIError{
				Kind:    domain.ErrTypeNetwork,
				Message: fmt.Sprintf("report %s timed out after %d polls", run.ReportID, run.PollCount),
			}
		}

		select {
		case <-ctx.Done():
			run.State = StateFailed
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}

		run.PollCount++
		status, err := r.api.PollReport(ctx, account, run.ReportID)
		if err != nil {
			run.State = StateFailed
			return nil, err
		}

		switch status {
		case ReportReady:
			run.State = StateReady
		case ReportFailed:
			run.State = StateFailed
			return nil, &APIError{
				Kind:    domain.ErrTypeData,
				Message: fmt.Sprintf("report %s failed on the platform side", run.ReportID),
			}
		}
	}

	rows, err := r.api.FetchReport(ctx, account, run.ReportID)
	if err != nil {
		run.State = StateFailed
		return nil, err
	}
	run.State = StateFetched

	logger.Debug("report fetched",
		"account_id", account.ID,
		"report_id", run.ReportID,
		"rows", len(rows),
		"polls", run.PollCount,
		"granularity", string(granularity))
	return rows, nil
}
