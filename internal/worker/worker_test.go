package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpulse/internal/ads"
	"github.com/ignite/adpulse/internal/domain"
)

// memStore is an in-memory JobStore with the same checkpoint semantics as
// the Postgres repository.
type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.JobRun
	steps map[string]map[string]map[domain.Step]*domain.AccountStepLog // job -> account -> step
}

func newMemStore() *memStore {
	return &memStore{
		jobs:  map[string]*domain.JobRun{},
		steps: map[string]map[string]map[domain.Step]*domain.AccountStepLog{},
	}
}

func (m *memStore) CreateJob(ctx context.Context, job *domain.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = "job-1"
	}
	job.StartedAt = time.Now()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) GetJob(ctx context.Context, id string) (*domain.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) LatestResumable(ctx context.Context) (*domain.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if !j.Status.IsTerminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Status = status
	}
	return nil
}

func (m *memStore) FinalizeJob(ctx context.Context, id string, status domain.JobStatus, processed, failed, skipped int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	now := time.Now()
	j.Status = status
	j.ProcessedAccounts = processed
	j.FailedAccounts = failed
	j.SkippedAccounts = skipped
	j.CompletedAt = &now
	return nil
}

func (m *memStore) EnsureStepRows(ctx context.Context, jobID, accountID string, steps []domain.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps[jobID] == nil {
		m.steps[jobID] = map[string]map[domain.Step]*domain.AccountStepLog{}
	}
	if m.steps[jobID][accountID] == nil {
		m.steps[jobID][accountID] = map[domain.Step]*domain.AccountStepLog{}
	}
	for _, s := range steps {
		if _, ok := m.steps[jobID][accountID][s]; !ok {
			m.steps[jobID][accountID][s] = &domain.AccountStepLog{
				JobID: jobID, AccountID: accountID, Step: s, Status: domain.StepPending,
			}
		}
	}
	return nil
}

func (m *memStore) StepStates(ctx context.Context, jobID, accountID string) (map[domain.Step]domain.AccountStepLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.Step]domain.AccountStepLog{}
	for s, l := range m.steps[jobID][accountID] {
		out[s] = *l
	}
	return out, nil
}

func (m *memStore) MarkStepRunning(ctx context.Context, jobID, accountID string, step domain.Step, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.steps[jobID][accountID][step]
	l.Status = domain.StepRunning
	l.Attempts++
	l.WorkerID = workerID
	return nil
}

func (m *memStore) MarkStepResult(ctx context.Context, jobID, accountID string, step domain.Step,
	status domain.StepStatus, errType domain.ErrorType, errMsg string, durationMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.steps[jobID][accountID][step]
	l.Status = status
	l.ErrorType = errType
	l.ErrorMsg = errMsg
	l.DurationMs = durationMs
	return nil
}

func (m *memStore) ResetRunningSteps(ctx context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, byStep := range m.steps[jobID] {
		for _, l := range byStep {
			if l.Status == domain.StepRunning {
				l.Status = domain.StepPending
				n++
			}
		}
	}
	return n, nil
}

func (m *memStore) JobStepLogs(ctx context.Context, jobID string) ([]domain.AccountStepLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AccountStepLog
	for _, byStep := range m.steps[jobID] {
		for _, l := range byStep {
			out = append(out, *l)
		}
	}
	return out, nil
}

// fakeSync scripts per-account sync errors and records call counts.
type fakeSync struct {
	mu        sync.Mutex
	syncErrs  map[string][]error // consumed per call
	syncCalls map[string]int
	dailyCall map[string]int
}

func newFakeSync() *fakeSync {
	return &fakeSync{syncErrs: map[string][]error{}, syncCalls: map[string]int{}, dailyCall: map[string]int{}}
}

func (f *fakeSync) SyncAccount(ctx context.Context, account domain.AdAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls[account.ID]++
	if errs := f.syncErrs[account.ID]; len(errs) > 0 {
		err := errs[0]
		f.syncErrs[account.ID] = errs[1:]
		return err
	}
	return nil
}

func (f *fakeSync) DailyEnrich(ctx context.Context, account domain.AdAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCall[account.ID]++
	return nil
}

func (f *fakeSync) calls(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncCalls[accountID]
}

type stepCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newStepCounter() *stepCounter { return &stepCounter{calls: map[string]int{}} }

func (c *stepCounter) fn(ctx context.Context, accountID string, since time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[accountID]++
	return nil
}

func (c *stepCounter) count(accountID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[accountID]
}

type fixedAccounts []domain.AdAccount

func (f fixedAccounts) ListEligibleAccounts(ctx context.Context, limit int) ([]domain.AdAccount, error) {
	if limit > 0 && limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

type harness struct {
	store   *memStore
	sync    *fakeSync
	steps   *stepCounter
	tracker *Tracker
	sched   *Scheduler
}

func newHarness(accounts []domain.AdAccount) *harness {
	store := newMemStore()
	fs := newFakeSync()
	sc := newStepCounter()
	tracker := NewTracker(store)
	runner := NewStepRunner(StepRunnerConfig{
		Tracker:      tracker,
		Store:        store,
		Backoff:      NewGroupBackoff(nil),
		Sync:         fs,
		Normalize:    sc.fn,
		Features:     sc.fn,
		Anomalies:    sc.fn,
		Burnout:      sc.fn,
		MaxAttempts:  3,
		RetrySpacing: time.Millisecond,
		GroupBackoff: 5 * time.Millisecond,
		Since:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	pool := NewPool(tracker, runner, 2, 0)
	return &harness{
		store:   store,
		sync:    fs,
		steps:   sc,
		tracker: tracker,
		sched:   NewScheduler(fixedAccounts(accounts), tracker, pool),
	}
}

func TestTokenFailureIsolatedFromOtherGroups(t *testing.T) {
	accounts := []domain.AdAccount{
		{ID: "acct-a", BusinessID: "biz-1"},
		{ID: "acct-b", BusinessID: "biz-2"},
	}
	h := newHarness(accounts)
	h.sync.syncErrs["acct-a"] = []error{
		&ads.APIError{Kind: domain.ErrTypeTokenInvalid, StatusCode: 401, Message: "token expired"},
	}

	job, err := h.sched.Run(context.Background(), domain.JobParams{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 1, job.ProcessedAccounts)
	assert.Equal(t, 1, job.FailedAccounts)

	// Exactly one attempt for the failed step, no retry on token_invalid.
	states, err := h.store.StepStates(context.Background(), job.ID, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, domain.StepFailed, states[domain.StepFullSync].Status)
	assert.Equal(t, 1, states[domain.StepFullSync].Attempts)
	assert.Equal(t, domain.ErrTypeTokenInvalid, states[domain.StepFullSync].ErrorType)

	// The steps behind the failure are skipped, not pending.
	assert.Equal(t, domain.StepSkipped, states[domain.StepNormalize].Status)
	assert.Equal(t, domain.StepSkipped, states[domain.StepBurnout].Status)

	// The other tenant group ran to completion.
	statesB, err := h.store.StepStates(context.Background(), job.ID, "acct-b")
	require.NoError(t, err)
	for _, step := range domain.StepOrder {
		assert.Equal(t, domain.StepCompleted, statesB[step].Status, "step %s", step)
	}
}

func TestNetworkErrorRetriesUpToCap(t *testing.T) {
	accounts := []domain.AdAccount{{ID: "acct-a", BusinessID: "biz-1"}}
	h := newHarness(accounts)
	h.sync.syncErrs["acct-a"] = []error{
		&ads.APIError{Kind: domain.ErrTypeNetwork, StatusCode: 502, Message: "bad gateway"},
		&ads.APIError{Kind: domain.ErrTypeNetwork, StatusCode: 502, Message: "bad gateway"},
	}

	job, err := h.sched.Run(context.Background(), domain.JobParams{Workers: 1})
	require.NoError(t, err)

	// Two transient failures then success on the third attempt.
	assert.Equal(t, 3, h.sync.calls("acct-a"))
	assert.Equal(t, 1, job.ProcessedAccounts)

	states, _ := h.store.StepStates(context.Background(), job.ID, "acct-a")
	assert.Equal(t, domain.StepCompleted, states[domain.StepFullSync].Status)
	assert.Equal(t, 3, states[domain.StepFullSync].Attempts)
}

func TestNetworkErrorExhaustsAttempts(t *testing.T) {
	accounts := []domain.AdAccount{{ID: "acct-a", BusinessID: "biz-1"}}
	h := newHarness(accounts)
	h.sync.syncErrs["acct-a"] = []error{
		&ads.APIError{Kind: domain.ErrTypeNetwork, Message: "down"},
		&ads.APIError{Kind: domain.ErrTypeNetwork, Message: "down"},
		&ads.APIError{Kind: domain.ErrTypeNetwork, Message: "down"},
	}

	job, err := h.sched.Run(context.Background(), domain.JobParams{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, job.FailedAccounts)

	states, _ := h.store.StepStates(context.Background(), job.ID, "acct-a")
	assert.Equal(t, domain.StepFailed, states[domain.StepFullSync].Status)
	assert.Equal(t, 3, states[domain.StepFullSync].Attempts)
	assert.Equal(t, domain.ErrTypeNetwork, states[domain.StepFullSync].ErrorType)
}

func TestRateLimitBacksOffGroupThenSucceeds(t *testing.T) {
	accounts := []domain.AdAccount{{ID: "acct-a", BusinessID: "biz-1"}}
	h := newHarness(accounts)
	h.sync.syncErrs["acct-a"] = []error{
		&ads.APIError{Kind: domain.ErrTypeRateLimited, StatusCode: 429, Message: "too many calls"},
	}

	start := time.Now()
	job, err := h.sched.Run(context.Background(), domain.JobParams{Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, job.ProcessedAccounts)
	assert.Equal(t, 2, h.sync.calls("acct-a"))
	// The retry waited out the group backoff first.
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestSkipStepsMarkedSkipped(t *testing.T) {
	accounts := []domain.AdAccount{{ID: "acct-a", BusinessID: "biz-1"}}
	h := newHarness(accounts)

	job, err := h.sched.Run(context.Background(), domain.JobParams{
		Workers:   1,
		SkipSteps: []domain.Step{domain.StepDaily, domain.StepBurnout},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, job.ProcessedAccounts)

	states, _ := h.store.StepStates(context.Background(), job.ID, "acct-a")
	assert.Equal(t, domain.StepSkipped, states[domain.StepDaily].Status)
	assert.Equal(t, domain.StepSkipped, states[domain.StepBurnout].Status)
	assert.Equal(t, domain.StepCompleted, states[domain.StepAnomalies].Status)
	assert.Equal(t, 0, h.sync.dailyCall["acct-a"])
}

func TestDryRunDispatchesNothing(t *testing.T) {
	accounts := []domain.AdAccount{{ID: "acct-a", BusinessID: "biz-1"}}
	h := newHarness(accounts)

	job, err := h.sched.Run(context.Background(), domain.JobParams{Workers: 1, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 0, h.sync.calls("acct-a"))
	assert.Equal(t, 0, h.steps.count("acct-a"))
	assert.Equal(t, 1, job.SkippedAccounts)
}

func TestResumeSkipsCompletedSteps(t *testing.T) {
	accounts := []domain.AdAccount{{ID: "acct-a", BusinessID: "biz-1"}}
	h := newHarness(accounts)

	// First run fails at features after fullsync and normalize completed.
	ctx := context.Background()
	job, err := h.tracker.Start(ctx, domain.JobParams{Workers: 1}, 1)
	require.NoError(t, err)
	require.NoError(t, h.store.EnsureStepRows(ctx, job.ID, "acct-a", domain.StepOrder))
	require.NoError(t, h.store.MarkStepResult(ctx, job.ID, "acct-a", domain.StepFullSync, domain.StepCompleted, "", "", 10))
	require.NoError(t, h.store.MarkStepResult(ctx, job.ID, "acct-a", domain.StepNormalize, domain.StepCompleted, "", "", 10))
	require.NoError(t, h.store.MarkStepRunning(ctx, job.ID, "acct-a", domain.StepFeatures, "worker-1"))

	resumed, err := h.sched.Resume(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, resumed.Status)
	assert.Equal(t, 1, resumed.ProcessedAccounts)

	// Completed steps were not re-executed.
	assert.Equal(t, 0, h.sync.calls("acct-a"))

	// The interrupted step went back to pending and then ran.
	states, _ := h.store.StepStates(ctx, job.ID, "acct-a")
	assert.Equal(t, domain.StepCompleted, states[domain.StepFeatures].Status)
}

func TestPausedJobIsNotFinalized(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	job, err := tracker.Start(ctx, domain.JobParams{}, 2)
	require.NoError(t, err)
	require.NoError(t, store.EnsureStepRows(ctx, job.ID, "acct-a", domain.StepOrder))
	for _, s := range domain.StepOrder {
		require.NoError(t, store.MarkStepResult(ctx, job.ID, "acct-a", s, domain.StepCompleted, "", "", 1))
	}
	require.NoError(t, store.EnsureStepRows(ctx, job.ID, "acct-b", domain.StepOrder))
	require.NoError(t, tracker.Pause(ctx, job.ID))

	got, err := tracker.Finalize(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPaused, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestOutcomeOf(t *testing.T) {
	mk := func(statuses ...domain.StepStatus) map[domain.Step]domain.AccountStepLog {
		out := map[domain.Step]domain.AccountStepLog{}
		for i, s := range statuses {
			step := domain.StepOrder[i]
			out[step] = domain.AccountStepLog{Step: step, Status: s}
		}
		return out
	}

	assert.Equal(t, OutcomeProcessed, OutcomeOf(mk(
		domain.StepCompleted, domain.StepCompleted, domain.StepCompleted,
		domain.StepCompleted, domain.StepSkipped, domain.StepCompleted)))
	assert.Equal(t, OutcomeFailed, OutcomeOf(mk(
		domain.StepFailed, domain.StepSkipped, domain.StepSkipped,
		domain.StepSkipped, domain.StepSkipped, domain.StepSkipped)))
	assert.Equal(t, OutcomePending, OutcomeOf(mk(
		domain.StepCompleted, domain.StepPending)))
	assert.Equal(t, OutcomeSkipped, OutcomeOf(mk(
		domain.StepSkipped, domain.StepSkipped)))
}
