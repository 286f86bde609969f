package domain

import "time"

// EntityStatus enumerates the delivery states the ads platform reports for
// campaigns, adsets and ads.
type EntityStatus string

const (
	EntityActive   EntityStatus = "active"
	EntityPaused   EntityStatus = "paused"
	EntityArchived EntityStatus = "archived"
	EntityDeleted  EntityStatus = "deleted"
)

// AdAccount is one advertiser account. Accounts that share a BusinessID share
// the same external API rate-limit bucket and are processed sequentially.
type AdAccount struct {
	ID          string    `json:"id" db:"id"`
	BusinessID  string    `json:"business_id" db:"business_id"`
	Name        string    `json:"name" db:"name"`
	Status      string    `json:"status" db:"status"`
	AccessToken string    `json:"-" db:"access_token"`
	Timezone    string    `json:"timezone" db:"timezone"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Campaign is a campaign registry row. Identity is immutable; status and name
// are refreshed on every sync.
type Campaign struct {
	ID        string       `json:"id" db:"id"`
	AccountID string       `json:"account_id" db:"account_id"`
	Name      string       `json:"name" db:"name"`
	Status    EntityStatus `json:"status" db:"status"`
	Objective string       `json:"objective" db:"objective"`
}

// AdSet is an adset registry row. OptimizationGoal selects which result
// families its ads are normalized into.
type AdSet struct {
	ID               string       `json:"id" db:"id"`
	CampaignID       string       `json:"campaign_id" db:"campaign_id"`
	AccountID        string       `json:"account_id" db:"account_id"`
	Name             string       `json:"name" db:"name"`
	Status           EntityStatus `json:"status" db:"status"`
	OptimizationGoal string       `json:"optimization_goal" db:"optimization_goal"`
}

// AdEntity is an ad registry row.
type AdEntity struct {
	ID         string       `json:"id" db:"id"`
	AdSetID    string       `json:"adset_id" db:"adset_id"`
	CampaignID string       `json:"campaign_id" db:"campaign_id"`
	AccountID  string       `json:"account_id" db:"account_id"`
	CreativeID string       `json:"creative_id" db:"creative_id"`
	Name       string       `json:"name" db:"name"`
	Status     EntityStatus `json:"status" db:"status"`
}
