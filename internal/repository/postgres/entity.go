package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/adpulse/internal/domain"
)

// EntityRepo persists the account/campaign/adset/ad registries.
type EntityRepo struct{ db *sql.DB }

// NewEntityRepo creates a Postgres-backed entity repository.
func NewEntityRepo(db *sql.DB) *EntityRepo { return &EntityRepo{db: db} }

// ListEligibleAccounts returns active accounts in deterministic order so two
// runs over the same table partition work identically. limit <= 0 means all.
func (r *EntityRepo) ListEligibleAccounts(ctx context.Context, limit int) ([]domain.AdAccount, error) {
	q := `
		SELECT id, business_id, name, status, access_token, timezone, updated_at
		FROM ad_accounts
		WHERE status = 'active' AND access_token <> ''
		ORDER BY business_id, id`
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.AdAccount
	for rows.Next() {
		var a domain.AdAccount
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.Name, &a.Status, &a.AccessToken, &a.Timezone, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAccount fetches one account by id.
func (r *EntityRepo) GetAccount(ctx context.Context, id string) (*domain.AdAccount, error) {
	a := &domain.AdAccount{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, business_id, name, status, access_token, timezone, updated_at
		FROM ad_accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.BusinessID, &a.Name, &a.Status, &a.AccessToken, &a.Timezone, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// UpsertCampaigns refreshes the campaign registry. Identity never changes;
// name, status and objective follow the platform.
func (r *EntityRepo) UpsertCampaigns(ctx context.Context, campaigns []domain.Campaign) error {
	for _, c := range campaigns {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO campaigns (id, account_id, name, status, objective, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				status = EXCLUDED.status,
				objective = EXCLUDED.objective,
				updated_at = NOW()
		`, c.ID, c.AccountID, c.Name, c.Status, c.Objective)
		if err != nil {
			return fmt.Errorf("upsert campaign %s: %w", c.ID, err)
		}
	}
	return nil
}

// UpsertAdSets refreshes the adset registry.
func (r *EntityRepo) UpsertAdSets(ctx context.Context, adsets []domain.AdSet) error {
	for _, s := range adsets {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO adsets (id, campaign_id, account_id, name, status, optimization_goal, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				status = EXCLUDED.status,
				optimization_goal = EXCLUDED.optimization_goal,
				updated_at = NOW()
		`, s.ID, s.CampaignID, s.AccountID, s.Name, s.Status, s.OptimizationGoal)
		if err != nil {
			return fmt.Errorf("upsert adset %s: %w", s.ID, err)
		}
	}
	return nil
}

// UpsertAds refreshes the ad registry.
func (r *EntityRepo) UpsertAds(ctx context.Context, ads []domain.AdEntity) error {
	for _, a := range ads {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO ads (id, adset_id, campaign_id, account_id, creative_id, name, status, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				status = EXCLUDED.status,
				creative_id = EXCLUDED.creative_id,
				updated_at = NOW()
		`, a.ID, a.AdSetID, a.CampaignID, a.AccountID, a.CreativeID, a.Name, a.Status)
		if err != nil {
			return fmt.Errorf("upsert ad %s: %w", a.ID, err)
		}
	}
	return nil
}

// AdGoals maps each ad of one account to its adset's optimization goal.
// Normalization selects result families from this mapping.
func (r *EntityRepo) AdGoals(ctx context.Context, accountID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, COALESCE(s.optimization_goal, '')
		FROM ads a
		LEFT JOIN adsets s ON s.id = a.adset_id
		WHERE a.account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("ad goals: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var adID, goal string
		if err := rows.Scan(&adID, &goal); err != nil {
			return nil, fmt.Errorf("scan ad goal: %w", err)
		}
		out[adID] = goal
	}
	return out, rows.Err()
}
