package ads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpulse/internal/domain"
)

// fakeAPI scripts poll statuses in order; the last status repeats.
type fakeAPI struct {
	submitErr error
	statuses  []ReportStatus
	pollErr   error
	rows      []ReportRow
	fetchErr  error

	polls int
}

func (f *fakeAPI) ListEntities(ctx context.Context, account domain.AdAccount) (*EntityTree, error) {
	return &EntityTree{}, nil
}

func (f *fakeAPI) SubmitReport(ctx context.Context, account domain.AdAccount, window ReportWindow, granularity Granularity) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "rep-1", nil
}

func (f *fakeAPI) PollReport(ctx context.Context, account domain.AdAccount, reportID string) (ReportStatus, error) {
	if f.pollErr != nil {
		return "", f.pollErr
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	return f.statuses[i], nil
}

func (f *fakeAPI) FetchReport(ctx context.Context, account domain.AdAccount, reportID string) ([]ReportRow, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.rows, nil
}

func TestRunnerFetchesAfterReady(t *testing.T) {
	api := &fakeAPI{
		statuses: []ReportStatus{ReportQueued, ReportRunning, ReportReady},
		rows:     []ReportRow{{AdID: "a1", DateStart: "2026-06-01"}},
	}
	runner := NewRunner(api, time.Millisecond, 15)

	rows, err := runner.Run(context.Background(), testAccount(), ReportWindow{}, GranularityWeek)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, api.polls)
}

func TestRunnerTimesOutAsNetworkError(t *testing.T) {
	api := &fakeAPI{statuses: []ReportStatus{ReportRunning}}
	runner := NewRunner(api, time.Millisecond, 4)

	_, err := runner.Run(context.Background(), testAccount(), ReportWindow{}, GranularityWeek)
	require.Error(t, err)
	assert.Equal(t, domain.ErrTypeNetwork, Classify(err))
	assert.Equal(t, 4, api.polls)
}

func TestRunnerPlatformFailureIsDataError(t *testing.T) {
	api := &fakeAPI{statuses: []ReportStatus{ReportRunning, ReportFailed}}
	runner := NewRunner(api, time.Millisecond, 15)

	_, err := runner.Run(context.Background(), testAccount(), ReportWindow{}, GranularityWeek)
	require.Error(t, err)
	assert.Equal(t, domain.ErrTypeData, Classify(err))
}

func TestRunnerSubmitErrorPassesThrough(t *testing.T) {
	api := &fakeAPI{submitErr: &APIError{Kind: domain.ErrTypeTokenInvalid, StatusCode: 401}}
	runner := NewRunner(api, time.Millisecond, 15)

	_, err := runner.Run(context.Background(), testAccount(), ReportWindow{}, GranularityWeek)
	require.Error(t, err)
	assert.Equal(t, domain.ErrTypeTokenInvalid, Classify(err))
	assert.Equal(t, 0, api.polls)
}

func TestRunnerHonorsContextCancel(t *testing.T) {
	api := &fakeAPI{statuses: []ReportStatus{ReportRunning}}
	runner := NewRunner(api, 50*time.Millisecond, 15)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, testAccount(), ReportWindow{}, GranularityWeek)
	require.ErrorIs(t, err, context.Canceled)
}
