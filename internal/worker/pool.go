package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// Pool runs tenant groups across a fixed set of workers. A group is the unit
// of parallelism: two accounts of the same group never run concurrently, so
// the shared rate-limit bucket sees one caller at a time.
type Pool struct {
	tracker *Tracker
	runner  *StepRunner

	workers           int
	interAccountPause time.Duration
	pauseCheckEvery   time.Duration
}

// NewPool creates a worker pool.
func NewPool(tracker *Tracker, runner *StepRunner, workers int, interAccountPause time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		tracker:           tracker,
		runner:            runner,
		workers:           workers,
		interAccountPause: interAccountPause,
		pauseCheckEvery:   30 * time.Second,
	}
}

// Run processes every group to completion. Account failures are contained
// and counted; Run itself fails only on orchestration errors. When the job
// is paused mid-run, in-flight accounts drain and the rest stay pending.
func (p *Pool) Run(ctx context.Context, job *domain.JobRun, groups []TenantGroup) error {
	groupCh := make(chan TenantGroup)
	var wg sync.WaitGroup
	var processed, failed atomic.Int64
	var paused atomic.Bool

	lastPauseCheck := time.Now()
	var pauseMu sync.Mutex
	checkPaused := func() bool {
		if paused.Load() {
			return true
		}
		pauseMu.Lock()
		defer pauseMu.Unlock()
		if time.Since(lastPauseCheck) < p.pauseCheckEvery {
			return false
		}
		lastPauseCheck = time.Now()
		isPaused, err := p.tracker.IsPaused(ctx, job.ID)
		if err != nil {
			logger.Warn("pause check failed", "job_id", job.ID, "error", err.Error())
			return false
		}
		if isPaused {
			paused.Store(true)
			logger.Info("job pause observed, draining in-flight accounts", "job_id", job.ID)
		}
		return isPaused
	}

	for i := 0; i < p.workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range groupCh {
				p.runGroup(ctx, job, group, workerID, checkPaused, &processed, &failed)
			}
		}()
	}

feed:
	for _, g := range groups {
		select {
		case <-ctx.Done():
			break feed
		case groupCh <- g:
		}
	}
	close(groupCh)
	wg.Wait()

	logger.Info("pool drained",
		"job_id", job.ID,
		"processed", processed.Load(),
		"failed", failed.Load(),
		"paused", paused.Load())
	return ctx.Err()
}

// runGroup walks one group's accounts sequentially.
func (p *Pool) runGroup(ctx context.Context, job *domain.JobRun, group TenantGroup, workerID string,
	checkPaused func() bool, processed, failed *atomic.Int64) {
	for i, account := range group.Accounts {
		if ctx.Err() != nil || checkPaused() {
			return
		}
		if i > 0 && p.interAccountPause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interAccountPause):
			}
		}

		if err := p.runner.RunAccount(ctx, job, group.Key, account, workerID); err != nil {
			failed.Add(1)
			logger.Warn("account failed",
				"job_id", job.ID,
				"account_id", account.ID,
				"group", group.Key,
				"worker", workerID,
				"error", err.Error())
			continue
		}
		processed.Add(1)
	}
}
