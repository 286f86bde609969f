package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpulse/internal/domain"
)

func setupMock(t *testing.T) (sqlmock.Sqlmock, *EntityRepo, *MetricsRepo, *ResultRepo, *AnomalyRepo, *JobRepo) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewEntityRepo(db), NewMetricsRepo(db), NewResultRepo(db), NewAnomalyRepo(db), NewJobRepo(db)
}

func TestListEligibleAccountsDeterministicOrder(t *testing.T) {
	mock, entities, _, _, _, _ := setupMock(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, business_id, name, status, access_token, timezone, updated_at\s+FROM ad_accounts\s+WHERE status = 'active' AND access_token <> ''\s+ORDER BY business_id, id LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "name", "status", "access_token", "timezone", "updated_at"}).
			AddRow("111", "biz-a", "Acct A", "active", "tok-a", "UTC", now).
			AddRow("222", "biz-a", "Acct B", "active", "tok-b", "UTC", now))

	accounts, err := entities.ListEligibleAccounts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "111", accounts[0].ID)
	assert.Equal(t, "tok-a", accounts[0].AccessToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCampaignRefreshesMutableFields(t *testing.T) {
	mock, entities, _, _, _, _ := setupMock(t)

	mock.ExpectExec(`(?s)INSERT INTO campaigns .+ ON CONFLICT \(id\) DO UPDATE SET`).
		WithArgs("c1", "111", "Renamed", domain.EntityPaused, "OUTCOME_LEADS").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := entities.UpsertCampaigns(context.Background(), []domain.Campaign{{
		ID: "c1", AccountID: "111", Name: "Renamed",
		Status: domain.EntityPaused, Objective: "OUTCOME_LEADS",
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWeeklyKeyedByAdAndWeek(t *testing.T) {
	mock, _, metrics, _, _, _ := setupMock(t)

	week := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)INSERT INTO weekly_metrics .+ ON CONFLICT \(ad_id, week_start\) DO UPDATE SET`).
		WithArgs("a1", "111", week, 120.5, int64(10000), int64(8000), 1.25,
			1.8, 0.9, 12.05, 3.0, 2.0, 1.0, []byte(`[{"action_type":"purchase","count":4}]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := metrics.UpsertWeekly(context.Background(), []domain.WeeklyMetricRecord{{
		AdID: "a1", AccountID: "111", WeekStart: week,
		Spend: 120.5, Impressions: 10000, Reach: 8000, Frequency: 1.25,
		CTR: 1.8, LinkCTR: 0.9, CPM: 12.05,
		QualityRanking: 3, EngagementRanking: 2, ConversionRanking: 1,
		Actions: []domain.ActionCount{{ActionType: "purchase", Count: 4}},
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertResultsKeepsNilCPR(t *testing.T) {
	mock, _, _, results, _, _ := setupMock(t)

	week := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)INSERT INTO normalized_results .+ ON CONFLICT \(ad_id, week_start, result_family\) DO UPDATE SET`).
		WithArgs("a1", "111", week, domain.FamilyMessages, 80.0, 0.0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := results.UpsertResults(context.Background(), []domain.NormalizedWeeklyResult{{
		AdID: "a1", AccountID: "111", WeekStart: week,
		Family: domain.FamilyMessages, Spend: 80, ResultCount: 0, CPR: nil,
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListResultsScansNullCPR(t *testing.T) {
	mock, _, _, results, _, _ := setupMock(t)

	week := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT ad_id, account_id, week_start, result_family, spend, result_count, cpr\s+FROM normalized_results`).
		WithArgs("111", week).
		WillReturnRows(sqlmock.NewRows([]string{"ad_id", "account_id", "week_start", "result_family", "spend", "result_count", "cpr"}).
			AddRow("a1", "111", week, "messages", 80.0, 0.0, nil).
			AddRow("a1", "111", week.AddDate(0, 0, 7), "messages", 100.0, 10.0, 10.0))

	rows, err := results.ListResults(context.Background(), "111", week)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].CPR)
	require.NotNil(t, rows[1].CPR)
	assert.Equal(t, 10.0, *rows[1].CPR)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnomalyRoundTripJSON(t *testing.T) {
	mock, _, _, _, anomalies, _ := setupMock(t)

	week := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)SELECT .+ FROM anomalies\s+WHERE account_id = \$1`).
		WithArgs("111", week).
		WillReturnRows(sqlmock.NewRows([]string{
			"ad_id", "account_id", "week_start", "result_family", "type", "current_value",
			"baseline_value", "delta_pct", "anomaly_score", "confidence",
			"likely_triggers", "preceding_deviations",
		}).AddRow("a1", "111", week, "messages", "cpr_spike", 15.0, 10.0, 50.0, 0.5, 0.8,
			[]byte(`[{"metric":"frequency","delta_pct":22.0,"threshold":15.0}]`),
			[]byte(`{"week_0":{"cpm":18.0}}`)))

	out, err := anomalies.ListAnomalies(context.Background(), "111", week)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].LikelyTriggers, 1)
	assert.Equal(t, "frequency", out[0].LikelyTriggers[0].Metric)
	assert.Equal(t, 18.0, out[0].PrecedingDeviations["week_0"]["cpm"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureStepRowsIsIdempotent(t *testing.T) {
	mock, _, _, _, _, jobs := setupMock(t)

	for range domain.StepOrder {
		mock.ExpectExec(`(?s)INSERT INTO account_step_log .+ ON CONFLICT \(job_id, account_id, step\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	err := jobs.EnsureStepRows(context.Background(), "job-1", "111", domain.StepOrder)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStepRunningCountsAttempt(t *testing.T) {
	mock, _, _, _, _, jobs := setupMock(t)

	mock.ExpectExec(`UPDATE account_step_log\s+SET status = 'running', attempts = attempts \+ 1`).
		WithArgs("job-1", "111", domain.StepFullSync, "worker-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := jobs.MarkStepRunning(context.Background(), "job-1", "111", domain.StepFullSync, "worker-2")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRunningStepsOnResume(t *testing.T) {
	mock, _, _, _, _, jobs := setupMock(t)

	mock.ExpectExec(`UPDATE account_step_log SET status = 'pending', updated_at = NOW\(\)\s+WHERE job_id = \$1 AND status = 'running'`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := jobs.ResetRunningSteps(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestResumableReturnsNilWhenNone(t *testing.T) {
	mock, _, _, _, _, jobs := setupMock(t)

	mock.ExpectQuery(`SELECT id FROM job_runs\s+WHERE status IN`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	job, err := jobs.LatestResumable(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
	require.NoError(t, mock.ExpectationsWereMet())
}
