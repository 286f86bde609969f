// Package postgres implements the pipeline's persistence against PostgreSQL.
// All derived tables carry natural keys so every step is an idempotent upsert;
// re-running a step never duplicates rows.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema applies idempotent schema bootstrap. Individual statement
// failures are non-fatal so a partially-managed database (DBA-owned tables)
// does not block startup.
func EnsureSchema(db *sql.DB) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ad_accounts (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			access_token TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			objective TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS adsets (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			optimization_goal TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ads (
			id TEXT PRIMARY KEY,
			adset_id TEXT NOT NULL,
			campaign_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			creative_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS weekly_metrics (
			ad_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			week_start DATE NOT NULL,
			spend DOUBLE PRECISION NOT NULL DEFAULT 0,
			impressions BIGINT NOT NULL DEFAULT 0,
			reach BIGINT NOT NULL DEFAULT 0,
			frequency DOUBLE PRECISION NOT NULL DEFAULT 0,
			ctr DOUBLE PRECISION NOT NULL DEFAULT 0,
			link_ctr DOUBLE PRECISION NOT NULL DEFAULT 0,
			cpm DOUBLE PRECISION NOT NULL DEFAULT 0,
			quality_ranking DOUBLE PRECISION NOT NULL DEFAULT 0,
			engagement_ranking DOUBLE PRECISION NOT NULL DEFAULT 0,
			conversion_ranking DOUBLE PRECISION NOT NULL DEFAULT 0,
			actions JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (ad_id, week_start)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_metrics (
			ad_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			day DATE NOT NULL,
			spend DOUBLE PRECISION NOT NULL DEFAULT 0,
			actions JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (ad_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS normalized_results (
			ad_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			week_start DATE NOT NULL,
			result_family TEXT NOT NULL,
			spend DOUBLE PRECISION NOT NULL DEFAULT 0,
			result_count DOUBLE PRECISION NOT NULL DEFAULT 0,
			cpr DOUBLE PRECISION,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (ad_id, week_start, result_family)
		)`,
		`CREATE TABLE IF NOT EXISTS ad_weekly_features (
			ad_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			week_start DATE NOT NULL,
			result_family TEXT NOT NULL,
			baseline_cpr DOUBLE PRECISION,
			eligible_prior_weeks INTEGER NOT NULL DEFAULT 0,
			delta_pct JSONB NOT NULL DEFAULT '{}',
			lag1_cpr DOUBLE PRECISION,
			lag2_cpr DOUBLE PRECISION,
			slope_cpr DOUBLE PRECISION,
			slope_ctr DOUBLE PRECISION,
			slope_frequency DOUBLE PRECISION,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (ad_id, week_start)
		)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			ad_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			week_start DATE NOT NULL,
			result_family TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'cpr_spike',
			current_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			baseline_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			delta_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			anomaly_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			likely_triggers JSONB NOT NULL DEFAULT '[]',
			preceding_deviations JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (ad_id, week_start, result_family)
		)`,
		`CREATE TABLE IF NOT EXISTS burnout_predictions (
			ad_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			week_start DATE NOT NULL,
			result_family TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			predicted_cpr_change_1w DOUBLE PRECISION NOT NULL DEFAULT 0,
			predicted_cpr_change_2w DOUBLE PRECISION NOT NULL DEFAULT 0,
			top_drivers JSONB NOT NULL DEFAULT '[]',
			elasticity_source TEXT NOT NULL DEFAULT '',
			elasticity DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (ad_id, week_start)
		)`,
		`CREATE TABLE IF NOT EXISTS job_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'pending',
			total_accounts INTEGER NOT NULL DEFAULT 0,
			processed_accounts INTEGER NOT NULL DEFAULT 0,
			failed_accounts INTEGER NOT NULL DEFAULT 0,
			skipped_accounts INTEGER NOT NULL DEFAULT 0,
			params JSONB NOT NULL DEFAULT '{}',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS account_step_log (
			job_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			error_type TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			worker_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (job_id, account_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weekly_metrics_account ON weekly_metrics (account_id, week_start)`,
		`CREATE INDEX IF NOT EXISTS idx_normalized_results_account ON normalized_results (account_id, result_family, week_start)`,
		`CREATE INDEX IF NOT EXISTS idx_features_account ON ad_weekly_features (account_id, week_start)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_account ON anomalies (account_id, week_start)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_account ON burnout_predictions (account_id, week_start)`,
		`CREATE INDEX IF NOT EXISTS idx_step_log_job ON account_step_log (job_id, status)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			logger.Warn("schema bootstrap statement failed", "error", err.Error())
		}
	}
}
