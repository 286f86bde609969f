package domain

import "time"

// ResultFamily is the canonical conversion-goal bucket that normalizes
// platform-specific action types.
type ResultFamily string

const (
	FamilyMessages    ResultFamily = "messages"
	FamilyLeadgenForm ResultFamily = "leadgen_form"
	FamilyWebsiteLead ResultFamily = "website_lead"
	FamilyPurchase    ResultFamily = "purchase"
	FamilyClick       ResultFamily = "click"
	FamilyVideoView   ResultFamily = "video_view"
	FamilyAppInstall  ResultFamily = "app_install"
)

// ActionCount is one raw conversion-action entry from a platform report row.
type ActionCount struct {
	ActionType string  `json:"action_type"`
	Count      float64 `json:"count"`
}

// WeeklyMetricRecord is the raw per-ad/week metric row as fetched from the
// platform. One row per (ad_id, week_start); it is the source of truth for
// normalization and is never derived.
type WeeklyMetricRecord struct {
	AdID        string    `json:"ad_id" db:"ad_id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	WeekStart   time.Time `json:"week_start" db:"week_start"`
	Spend       float64   `json:"spend" db:"spend"`
	Impressions int64     `json:"impressions" db:"impressions"`
	Reach       int64     `json:"reach" db:"reach"`
	Frequency   float64   `json:"frequency" db:"frequency"`
	CTR         float64   `json:"ctr" db:"ctr"`
	LinkCTR     float64   `json:"link_ctr" db:"link_ctr"`
	CPM         float64   `json:"cpm" db:"cpm"`

	// Rankings arrive as platform enums and are stored as scores
	// (above_average=3, average=2, below_average=1, 0 = not reported).
	QualityRanking    float64 `json:"quality_ranking" db:"quality_ranking"`
	EngagementRanking float64 `json:"engagement_ranking" db:"engagement_ranking"`
	ConversionRanking float64 `json:"conversion_ranking" db:"conversion_ranking"`

	Actions []ActionCount `json:"actions" db:"-"`
}

// DailyMetricRecord is the optional day-granularity enrichment row.
type DailyMetricRecord struct {
	AdID      string        `json:"ad_id" db:"ad_id"`
	AccountID string        `json:"account_id" db:"account_id"`
	Day       time.Time     `json:"day" db:"day"`
	Spend     float64       `json:"spend" db:"spend"`
	Actions   []ActionCount `json:"actions" db:"-"`
}

// NormalizedWeeklyResult is the derived per (ad, week, family) row. CPR is nil
// when ResultCount is zero; it is never coerced to zero or infinity.
type NormalizedWeeklyResult struct {
	AdID        string       `json:"ad_id" db:"ad_id"`
	AccountID   string       `json:"account_id" db:"account_id"`
	WeekStart   time.Time    `json:"week_start" db:"week_start"`
	Family      ResultFamily `json:"result_family" db:"result_family"`
	Spend       float64      `json:"spend" db:"spend"`
	ResultCount float64      `json:"result_count" db:"result_count"`
	CPR         *float64     `json:"cpr" db:"cpr"`
}

// AdWeeklyFeature is the derived per (ad, week) statistical feature row for
// the ad's primary result family. BaselineCPR is nil when fewer than the
// configured number of eligible prior weeks exist; such rows are excluded
// from anomaly detection rather than treated as "no anomaly".
type AdWeeklyFeature struct {
	AdID      string       `json:"ad_id" db:"ad_id"`
	AccountID string       `json:"account_id" db:"account_id"`
	WeekStart time.Time    `json:"week_start" db:"week_start"`
	Family    ResultFamily `json:"result_family" db:"result_family"`

	BaselineCPR   *float64 `json:"baseline_cpr" db:"baseline_cpr"`
	EligiblePrior int      `json:"eligible_prior_weeks" db:"eligible_prior_weeks"`

	// DeltaPct maps metric name -> percent change vs that metric's own
	// trailing baseline. Only present for weeks with a baseline.
	DeltaPct map[string]float64 `json:"delta_pct" db:"-"`

	// Lags copy the prior weeks' own values (not deltas vs this week).
	Lag1CPR *float64 `json:"lag1_cpr" db:"lag1_cpr"`
	Lag2CPR *float64 `json:"lag2_cpr" db:"lag2_cpr"`

	SlopeCPR       *float64 `json:"slope_cpr" db:"slope_cpr"`
	SlopeCTR       *float64 `json:"slope_ctr" db:"slope_ctr"`
	SlopeFrequency *float64 `json:"slope_frequency" db:"slope_frequency"`
}
