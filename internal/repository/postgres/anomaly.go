package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// AnomalyRepo persists detected anomalies and burnout predictions.
type AnomalyRepo struct{ db *sql.DB }

// NewAnomalyRepo creates a Postgres-backed anomaly repository.
func NewAnomalyRepo(db *sql.DB) *AnomalyRepo { return &AnomalyRepo{db: db} }

// UpsertAnomalies stores anomalies keyed (ad_id, week_start, result_family).
// Re-detection over the same week overwrites rather than duplicates.
func (r *AnomalyRepo) UpsertAnomalies(ctx context.Context, anomalies []domain.Anomaly) error {
	for _, a := range anomalies {
		triggers, err := json.Marshal(a.LikelyTriggers)
		if err != nil {
			return fmt.Errorf("marshal triggers for ad %s: %w", a.AdID, err)
		}
		deviations, err := json.Marshal(a.PrecedingDeviations)
		if err != nil {
			return fmt.Errorf("marshal deviations for ad %s: %w", a.AdID, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO anomalies
				(ad_id, account_id, week_start, result_family, type, current_value,
				 baseline_value, delta_pct, anomaly_score, confidence,
				 likely_triggers, preceding_deviations, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			ON CONFLICT (ad_id, week_start, result_family) DO UPDATE SET
				type = EXCLUDED.type,
				current_value = EXCLUDED.current_value,
				baseline_value = EXCLUDED.baseline_value,
				delta_pct = EXCLUDED.delta_pct,
				anomaly_score = EXCLUDED.anomaly_score,
				confidence = EXCLUDED.confidence,
				likely_triggers = EXCLUDED.likely_triggers,
				preceding_deviations = EXCLUDED.preceding_deviations,
				updated_at = NOW()
		`, a.AdID, a.AccountID, a.WeekStart, a.Family, a.Type, a.CurrentValue,
			a.BaselineValue, a.DeltaPct, a.AnomalyScore, a.Confidence,
			triggers, deviations)
		if err != nil {
			return fmt.Errorf("upsert anomaly ad %s week %s: %w",
				a.AdID, a.WeekStart.Format("2006-01-02"), err)
		}
	}
	return nil
}

// ListAnomalies returns one account's anomalies since the given week, newest
// first.
func (r *AnomalyRepo) ListAnomalies(ctx context.Context, accountID string, since time.Time) ([]domain.Anomaly, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad_id, account_id, week_start, result_family, type, current_value,
		       baseline_value, delta_pct, anomaly_score, confidence,
		       likely_triggers, preceding_deviations
		FROM anomalies
		WHERE account_id = $1 AND week_start >= $2
		ORDER BY week_start DESC, ad_id
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var out []domain.Anomaly
	for rows.Next() {
		var a domain.Anomaly
		var triggers, deviations []byte
		if err := rows.Scan(&a.AdID, &a.AccountID, &a.WeekStart, &a.Family, &a.Type,
			&a.CurrentValue, &a.BaselineValue, &a.DeltaPct, &a.AnomalyScore, &a.Confidence,
			&triggers, &deviations); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		if len(triggers) > 0 {
			if err := json.Unmarshal(triggers, &a.LikelyTriggers); err != nil {
				return nil, fmt.Errorf("unmarshal triggers ad %s: %w", a.AdID, err)
			}
		}
		if len(deviations) > 0 {
			if err := json.Unmarshal(deviations, &a.PrecedingDeviations); err != nil {
				return nil, fmt.Errorf("unmarshal deviations ad %s: %w", a.AdID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAnomalies returns how many anomalies one job-window produced per account.
func (r *AnomalyRepo) CountAnomalies(ctx context.Context, accountID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM anomalies WHERE account_id = $1 AND week_start >= $2
	`, accountID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return n, nil
}

// UpsertPredictions stores burnout predictions keyed (ad_id, week_start).
func (r *AnomalyRepo) UpsertPredictions(ctx context.Context, predictions []domain.BurnoutPrediction) error {
	for _, p := range predictions {
		drivers, err := json.Marshal(p.TopDrivers)
		if err != nil {
			return fmt.Errorf("marshal drivers for ad %s: %w", p.AdID, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO burnout_predictions
				(ad_id, account_id, week_start, result_family, risk_level, risk_score,
				 predicted_cpr_change_1w, predicted_cpr_change_2w, top_drivers,
				 elasticity_source, elasticity, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
			ON CONFLICT (ad_id, week_start) DO UPDATE SET
				result_family = EXCLUDED.result_family,
				risk_level = EXCLUDED.risk_level,
				risk_score = EXCLUDED.risk_score,
				predicted_cpr_change_1w = EXCLUDED.predicted_cpr_change_1w,
				predicted_cpr_change_2w = EXCLUDED.predicted_cpr_change_2w,
				top_drivers = EXCLUDED.top_drivers,
				elasticity_source = EXCLUDED.elasticity_source,
				elasticity = EXCLUDED.elasticity,
				updated_at = NOW()
		`, p.AdID, p.AccountID, p.WeekStart, p.Family, p.RiskLevel, p.RiskScore,
			p.PredictedCPRChange1W, p.PredictedCPRChange2W, drivers,
			p.ElasticitySource, p.Elasticity)
		if err != nil {
			return fmt.Errorf("upsert prediction ad %s week %s: %w",
				p.AdID, p.WeekStart.Format("2006-01-02"), err)
		}
	}
	return nil
}

// ListPredictions returns one account's predictions since the given week.
func (r *AnomalyRepo) ListPredictions(ctx context.Context, accountID string, since time.Time) ([]domain.BurnoutPrediction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ad_id, account_id, week_start, result_family, risk_level, risk_score,
		       predicted_cpr_change_1w, predicted_cpr_change_2w, top_drivers,
		       elasticity_source, elasticity
		FROM burnout_predictions
		WHERE account_id = $1 AND week_start >= $2
		ORDER BY week_start DESC, risk_score DESC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []domain.BurnoutPrediction
	for rows.Next() {
		var p domain.BurnoutPrediction
		var drivers []byte
		if err := rows.Scan(&p.AdID, &p.AccountID, &p.WeekStart, &p.Family, &p.RiskLevel,
			&p.RiskScore, &p.PredictedCPRChange1W, &p.PredictedCPRChange2W, &drivers,
			&p.ElasticitySource, &p.Elasticity); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if len(drivers) > 0 {
			if err := json.Unmarshal(drivers, &p.TopDrivers); err != nil {
				return nil, fmt.Errorf("unmarshal drivers ad %s: %w", p.AdID, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
