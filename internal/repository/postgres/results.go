package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// ResultRepo persists normalized weekly results and derived features.
type ResultRepo struct{ db *sql.DB }

// NewResultRepo creates a Postgres-backed result repository.
func NewResultRepo(db *sql.DB) *ResultRepo { return &ResultRepo{db: db} }

// UpsertResults stores normalized rows keyed (ad_id, week_start, result_family).
// CPR stays NULL when no results were counted.
func (r *ResultRepo) UpsertResults(ctx context.Context, results []domain.NormalizedWeeklyResult) error {
	for _, n := range results {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO normalized_results
				(ad_id, account_id, week_start, result_family, spend, result_count, cpr, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (ad_id, week_start, result_family) DO UPDATE SET
				spend = EXCLUDED.spend,
				result_count = EXCLUDED.result_count,
				cpr = EXCLUDED.cpr,
				updated_at = NOW()
		`, n.AdID, n.AccountID, n.WeekStart, n.Family, n.Spend, n.ResultCount, n.CPR)
		if err != nil {
			return fmt.Errorf("upsert result ad %s week %s family %s: %w",
				n.AdID, n.WeekStart.Format("2006-01-02"), n.Family, err)
		}
	}
	return nil
}

// ListResults returns one account's normalized rows since the given week,
// ordered by ad, family, week.
func (r *ResultRepo) ListResults(ctx context.Context, accountID string, since time.Time) ([]domain.NormalizedWeeklyResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad_id, account_id, week_start, result_family, spend, result_count, cpr
		FROM normalized_results
		WHERE account_id = $1 AND week_start >= $2
		ORDER BY ad_id, result_family, week_start
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// ListResultsByFamily returns all accounts' normalized rows for one family
// since the given week. Burnout pooling reads the global tier through this.
func (r *ResultRepo) ListResultsByFamily(ctx context.Context, family domain.ResultFamily, since time.Time) ([]domain.NormalizedWeeklyResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad_id, account_id, week_start, result_family, spend, result_count, cpr
		FROM normalized_results
		WHERE result_family = $1 AND week_start >= $2
		ORDER BY ad_id, week_start
	`, family, since)
	if err != nil {
		return nil, fmt.Errorf("list results by family: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]domain.NormalizedWeeklyResult, error) {
	var out []domain.NormalizedWeeklyResult
	for rows.Next() {
		var n domain.NormalizedWeeklyResult
		if err := rows.Scan(&n.AdID, &n.AccountID, &n.WeekStart, &n.Family,
			&n.Spend, &n.ResultCount, &n.CPR); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpsertFeatures stores derived feature rows keyed (ad_id, week_start).
func (r *ResultRepo) UpsertFeatures(ctx context.Context, features []domain.AdWeeklyFeature) error {
	for _, f := range features {
		deltas, err := json.Marshal(f.DeltaPct)
		if err != nil {
			return fmt.Errorf("marshal deltas for ad %s: %w", f.AdID, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO ad_weekly_features
				(ad_id, account_id, week_start, result_family, baseline_cpr,
				 eligible_prior_weeks, delta_pct, lag1_cpr, lag2_cpr,
				 slope_cpr, slope_ctr, slope_frequency, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			ON CONFLICT (ad_id, week_start) DO UPDATE SET
				result_family = EXCLUDED.result_family,
				baseline_cpr = EXCLUDED.baseline_cpr,
				eligible_prior_weeks = EXCLUDED.eligible_prior_weeks,
				delta_pct = EXCLUDED.delta_pct,
				lag1_cpr = EXCLUDED.lag1_cpr,
				lag2_cpr = EXCLUDED.lag2_cpr,
				slope_cpr = EXCLUDED.slope_cpr,
				slope_ctr = EXCLUDED.slope_ctr,
				slope_frequency = EXCLUDED.slope_frequency,
				updated_at = NOW()
		`, f.AdID, f.AccountID, f.WeekStart, f.Family, f.BaselineCPR,
			f.EligiblePrior, deltas, f.Lag1CPR, f.Lag2CPR,
			f.SlopeCPR, f.SlopeCTR, f.SlopeFrequency)
		if err != nil {
			return fmt.Errorf("upsert feature ad %s week %s: %w",
				f.AdID, f.WeekStart.Format("2006-01-02"), err)
		}
	}
	return nil
}

// ListFeatures returns one account's feature rows since the given week.
func (r *ResultRepo) ListFeatures(ctx context.Context, accountID string, since time.Time) ([]domain.AdWeeklyFeature, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad_id, account_id, week_start, result_family, baseline_cpr,
		       eligible_prior_weeks, delta_pct, lag1_cpr, lag2_cpr,
		       slope_cpr, slope_ctr, slope_frequency
		FROM ad_weekly_features
		WHERE account_id = $1 AND week_start >= $2
		ORDER BY ad_id, week_start
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var out []domain.AdWeeklyFeature
	for rows.Next() {
		var f domain.AdWeeklyFeature
		var deltas []byte
		if err := rows.Scan(&f.AdID, &f.AccountID, &f.WeekStart, &f.Family, &f.BaselineCPR,
			&f.EligiblePrior, &deltas, &f.Lag1CPR, &f.Lag2CPR,
			&f.SlopeCPR, &f.SlopeCTR, &f.SlopeFrequency); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		if len(deltas) > 0 {
			if err := json.Unmarshal(deltas, &f.DeltaPct); err != nil {
				return nil, fmt.Errorf("unmarshal deltas ad %s: %w", f.AdID, err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
