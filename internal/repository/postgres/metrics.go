package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// MetricsRepo persists raw weekly and daily metric rows. Raw rows are the
// source of truth for every downstream step and are keyed by natural keys so
// re-ingesting the same window is a no-op overwrite.
type MetricsRepo struct{ db *sql.DB }

// NewMetricsRepo creates a Postgres-backed metrics repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

// UpsertWeekly stores week-granularity rows keyed (ad_id, week_start).
func (r *MetricsRepo) UpsertWeekly(ctx context.Context, records []domain.WeeklyMetricRecord) error {
	for _, m := range records {
		actions, err := json.Marshal(m.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions for ad %s: %w", m.AdID, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO weekly_metrics
				(ad_id, account_id, week_start, spend, impressions, reach, frequency,
				 ctr, link_ctr, cpm, quality_ranking, engagement_ranking, conversion_ranking,
				 actions, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
			ON CONFLICT (ad_id, week_start) DO UPDATE SET
				spend = EXCLUDED.spend,
				impressions = EXCLUDED.impressions,
				reach = EXCLUDED.reach,
				frequency = EXCLUDED.frequency,
				ctr = EXCLUDED.ctr,
				link_ctr = EXCLUDED.link_ctr,
				cpm = EXCLUDED.cpm,
				quality_ranking = EXCLUDED.quality_ranking,
				engagement_ranking = EXCLUDED.engagement_ranking,
				conversion_ranking = EXCLUDED.conversion_ranking,
				actions = EXCLUDED.actions,
				updated_at = NOW()
		`, m.AdID, m.AccountID, m.WeekStart, m.Spend, m.Impressions, m.Reach, m.Frequency,
			m.CTR, m.LinkCTR, m.CPM, m.QualityRanking, m.EngagementRanking, m.ConversionRanking,
			actions)
		if err != nil {
			return fmt.Errorf("upsert weekly metrics ad %s week %s: %w",
				m.AdID, m.WeekStart.Format("2006-01-02"), err)
		}
	}
	return nil
}

// UpsertDaily stores day-granularity enrichment rows keyed (ad_id, day).
func (r *MetricsRepo) UpsertDaily(ctx context.Context, records []domain.DailyMetricRecord) error {
	for _, m := range records {
		actions, err := json.Marshal(m.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions for ad %s: %w", m.AdID, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO daily_metrics (ad_id, account_id, day, spend, actions, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (ad_id, day) DO UPDATE SET
				spend = EXCLUDED.spend,
				actions = EXCLUDED.actions,
				updated_at = NOW()
		`, m.AdID, m.AccountID, m.Day, m.Spend, actions)
		if err != nil {
			return fmt.Errorf("upsert daily metrics ad %s day %s: %w",
				m.AdID, m.Day.Format("2006-01-02"), err)
		}
	}
	return nil
}

// ListWeekly returns one account's raw weekly rows since the given week,
// ordered by ad then week so per-ad series arrive contiguous.
func (r *MetricsRepo) ListWeekly(ctx context.Context, accountID string, since time.Time) ([]domain.WeeklyMetricRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad_id, account_id, week_start, spend, impressions, reach, frequency,
		       ctr, link_ctr, cpm, quality_ranking, engagement_ranking, conversion_ranking, actions
		FROM weekly_metrics
		WHERE account_id = $1 AND week_start >= $2
		ORDER BY ad_id, week_start
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("list weekly metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.WeeklyMetricRecord
	for rows.Next() {
		var m domain.WeeklyMetricRecord
		var actions []byte
		if err := rows.Scan(&m.AdID, &m.AccountID, &m.WeekStart, &m.Spend, &m.Impressions,
			&m.Reach, &m.Frequency, &m.CTR, &m.LinkCTR, &m.CPM,
			&m.QualityRanking, &m.EngagementRanking, &m.ConversionRanking, &actions); err != nil {
			return nil, fmt.Errorf("scan weekly metrics: %w", err)
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &m.Actions); err != nil {
				return nil, fmt.Errorf("unmarshal actions ad %s: %w", m.AdID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
