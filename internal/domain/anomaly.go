package domain

import "time"

// Trigger is one tracked metric whose deviation breached its significance
// threshold in its documented bad direction. Triggers carry no cross-metric
// ranking; the set is unordered.
type Trigger struct {
	Metric    string  `json:"metric"`
	DeltaPct  float64 `json:"delta_pct"`
	Threshold float64 `json:"threshold"`
}

// Anomaly is a flagged cost-per-result spike for one (ad, week, family).
// Created only when both the eligibility gate and the threshold hold.
type Anomaly struct {
	AdID      string       `json:"ad_id" db:"ad_id"`
	AccountID string       `json:"account_id" db:"account_id"`
	WeekStart time.Time    `json:"week_start" db:"week_start"`
	Family    ResultFamily `json:"result_family" db:"result_family"`

	Type          string  `json:"type" db:"type"` // always "cpr_spike"
	CurrentValue  float64 `json:"current_value" db:"current_value"`
	BaselineValue float64 `json:"baseline_value" db:"baseline_value"`
	DeltaPct      float64 `json:"delta_pct" db:"delta_pct"`
	AnomalyScore  float64 `json:"anomaly_score" db:"anomaly_score"`
	Confidence    float64 `json:"confidence" db:"confidence"`

	LikelyTriggers []Trigger `json:"likely_triggers" db:"-"`

	// PrecedingDeviations holds the per-metric delta computation repeated
	// independently for the anomaly week and the two weeks before it, each
	// against its own baseline. Keys: "week_0", "week_-1", "week_-2".
	PrecedingDeviations map[string]map[string]float64 `json:"preceding_deviations" db:"-"`
}

// RiskLevel buckets a burnout risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelForScore maps a risk score in [0,1] to its level.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 0.25:
		return RiskLow
	case score < 0.50:
		return RiskMedium
	case score < 0.75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ElasticitySource records which pool supplied the elasticity coefficient.
type ElasticitySource string

const (
	ElasticityAd            ElasticitySource = "ad"
	ElasticityAccountFamily ElasticitySource = "account_family"
	ElasticityGlobalFamily  ElasticitySource = "global_family"
	ElasticityFallback      ElasticitySource = "fallback"
)

// BurnoutPrediction forecasts 1-2 week CPR degradation risk for one (ad, week).
type BurnoutPrediction struct {
	AdID      string       `json:"ad_id" db:"ad_id"`
	AccountID string       `json:"account_id" db:"account_id"`
	WeekStart time.Time    `json:"week_start" db:"week_start"`
	Family    ResultFamily `json:"result_family" db:"result_family"`

	RiskLevel            RiskLevel        `json:"risk_level" db:"risk_level"`
	RiskScore            float64          `json:"risk_score" db:"risk_score"`
	PredictedCPRChange1W float64          `json:"predicted_cpr_change_1w" db:"predicted_cpr_change_1w"`
	PredictedCPRChange2W float64          `json:"predicted_cpr_change_2w" db:"predicted_cpr_change_2w"`
	TopDrivers           []string         `json:"top_drivers" db:"-"`
	ElasticitySource     ElasticitySource `json:"elasticity_source" db:"elasticity_source"`
	Elasticity           float64          `json:"elasticity" db:"elasticity"`
}
