// Package report assembles the per-job summary document: per-account step
// outcomes, error breakdowns and anomaly counts, written locally and
// optionally archived to S3.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// AccountReport is one account's section of the job report.
type AccountReport struct {
	AccountID  string                  `json:"account_id"`
	Outcome    string                  `json:"outcome"`
	Steps      []domain.AccountStepLog `json:"steps"`
	Anomalies  int                     `json:"anomalies"`
	DurationMs int64                   `json:"duration_ms"`
}

// JobReport is the complete run summary.
type JobReport struct {
	Job         domain.JobRun           `json:"job"`
	Accounts    []AccountReport         `json:"accounts"`
	ErrorCounts map[domain.ErrorType]int `json:"error_counts"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// JobSource reads the run and its checkpoints.
type JobSource interface {
	GetJob(ctx context.Context, id string) (*domain.JobRun, error)
	JobStepLogs(ctx context.Context, jobID string) ([]domain.AccountStepLog, error)
}

// AnomalyCounter counts a window's anomalies per account.
type AnomalyCounter interface {
	CountAnomalies(ctx context.Context, accountID string, since time.Time) (int, error)
}

// Archiver stores a finished report document remotely.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// Builder assembles and writes job reports.
type Builder struct {
	jobs      JobSource
	anomalies AnomalyCounter
	archiver  Archiver // nil disables archival
	outputDir string
	since     time.Time
}

// NewBuilder creates a report builder.
func NewBuilder(jobs JobSource, anomalies AnomalyCounter, archiver Archiver, outputDir string, since time.Time) *Builder {
	return &Builder{jobs: jobs, anomalies: anomalies, archiver: archiver, outputDir: outputDir, since: since}
}

// Build assembles the report for one run.
func (b *Builder) Build(ctx context.Context, jobID string) (*JobReport, error) {
	job, err := b.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	logs, err := b.jobs.JobStepLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}

	byAccount := map[string][]domain.AccountStepLog{}
	for _, l := range logs {
		byAccount[l.AccountID] = append(byAccount[l.AccountID], l)
	}
	accountIDs := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	report := &JobReport{
		Job:         *job,
		ErrorCounts: map[domain.ErrorType]int{},
		GeneratedAt: time.Now().UTC(),
	}

	for _, accountID := range accountIDs {
		steps := byAccount[accountID]
		sort.Slice(steps, func(i, j int) bool {
			return stepIndex(steps[i].Step) < stepIndex(steps[j].Step)
		})

		ar := AccountReport{AccountID: accountID, Steps: steps}
		var failed, pending, completed bool
		for _, s := range steps {
			ar.DurationMs += s.DurationMs
			switch s.Status {
			case domain.StepFailed:
				failed = true
				report.ErrorCounts[s.ErrorType]++
			case domain.StepPending, domain.StepRunning:
				pending = true
			case domain.StepCompleted:
				completed = true
			}
		}
		switch {
		case failed:
			ar.Outcome = "failed"
		case pending:
			ar.Outcome = "pending"
		case completed:
			ar.Outcome = "processed"
		default:
			ar.Outcome = "skipped"
		}

		if b.anomalies != nil {
			if n, err := b.anomalies.CountAnomalies(ctx, accountID, b.since); err == nil {
				ar.Anomalies = n
			}
		}
		report.Accounts = append(report.Accounts, ar)
	}
	return report, nil
}

// Write renders the report to the output directory and archives it when an
// archiver is configured. Archival failure is non-fatal; the local file is
// the primary artifact.
func (b *Builder) Write(ctx context.Context, report *JobReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	name := fmt.Sprintf("job-%s-%s.json", report.Job.ID, report.GeneratedAt.Format("20060102-150405"))
	path := filepath.Join(b.outputDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	if b.archiver != nil {
		key := fmt.Sprintf("reports/%s/%s", report.GeneratedAt.Format("2006/01/02"), name)
		if err := b.archiver.Archive(ctx, key, body); err != nil {
			logger.Warn("report archive failed", "job_id", report.Job.ID, "key", key, "error", err.Error())
		}
	}

	logger.Info("job report written", "job_id", report.Job.ID, "path", path)
	return path, nil
}

func stepIndex(step domain.Step) int {
	for i, s := range domain.StepOrder {
		if s == step {
			return i
		}
	}
	return len(domain.StepOrder)
}
