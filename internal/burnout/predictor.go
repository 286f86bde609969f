// Package burnout forecasts short-horizon CPR degradation risk. The central
// quantity is the elasticity coefficient k, a regression slope of
// ln(cpr_ratio) on ln(spend_ratio) over spend growth events, pooled across
// wider scopes when an ad has too few events of its own.
package burnout

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// GrowthEvent is one week-over-week spend increase used as an elasticity
// sample.
type GrowthEvent struct {
	X float64 // ln(spend_ratio)
	Y float64 // ln(cpr_ratio)
}

// Predictor derives elasticities and risk predictions.
type Predictor struct {
	GrowthEventRatio   float64
	MinAdEvents        int
	MinAccountEvents   int
	MinGlobalEvents    int
	FallbackElasticity float64
}

// NewPredictor creates a predictor.
func NewPredictor(growthRatio float64, minAd, minAccount, minGlobal int, fallback float64) *Predictor {
	return &Predictor{
		GrowthEventRatio:   growthRatio,
		MinAdEvents:        minAd,
		MinAccountEvents:   minAccount,
		MinGlobalEvents:    minGlobal,
		FallbackElasticity: fallback,
	}
}

// GrowthEvents extracts elasticity samples from one ad's week-ordered series.
// Both weeks of a pair need positive spend and a computed CPR.
func (p *Predictor) GrowthEvents(series []domain.NormalizedWeeklyResult) []GrowthEvent {
	sorted := append([]domain.NormalizedWeeklyResult(nil), series...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].WeekStart.Before(sorted[j].WeekStart) })

	var out []GrowthEvent
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Spend <= 0 || cur.Spend <= 0 || prev.CPR == nil || cur.CPR == nil {
			continue
		}
		ratio := cur.Spend / prev.Spend
		if ratio < p.GrowthEventRatio {
			continue
		}
		out = append(out, GrowthEvent{
			X: math.Log(ratio),
			Y: math.Log(*cur.CPR / *prev.CPR),
		})
	}
	return out
}

// Elasticity fits k = sum(x*y) / sum(x*x) over the events.
func Elasticity(events []GrowthEvent) (float64, bool) {
	var sumXY, sumXX float64
	for _, e := range events {
		sumXY += e.X * e.Y
		sumXX += e.X * e.X
	}
	if sumXX == 0 {
		return 0, false
	}
	return sumXY / sumXX, true
}

// PickElasticity resolves k through the deterministic pooling ladder. A pool
// below its sample minimum is never used, regardless of how close it is.
func (p *Predictor) PickElasticity(adEvents, accountEvents, globalEvents []GrowthEvent) (float64, domain.ElasticitySource) {
	if len(adEvents) >= p.MinAdEvents {
		if k, ok := Elasticity(adEvents); ok {
			return k, domain.ElasticityAd
		}
	}
	if len(accountEvents) >= p.MinAccountEvents {
		if k, ok := Elasticity(accountEvents); ok {
			return k, domain.ElasticityAccountFamily
		}
	}
	if len(globalEvents) >= p.MinGlobalEvents {
		if k, ok := Elasticity(globalEvents); ok {
			return k, domain.ElasticityGlobalFamily
		}
	}
	return p.FallbackElasticity, domain.ElasticityFallback
}

// Projection is one scaling scenario's forecast.
type Projection struct {
	SpendPred   float64
	CPRPred     float64
	ResultsPred float64
}

// ScalingProjection forecasts the effect of changing spend by delta (0.5 is
// +50 percent). Only elasticity enters here; the organic trend slope never
// does, since k models the budget-change response alone.
func ScalingProjection(currentSpend, currentCPR, k, delta float64) Projection {
	spend := currentSpend * (1 + delta)
	cpr := currentCPR * math.Exp(k*math.Log(1+delta))
	proj := Projection{SpendPred: spend, CPRPred: cpr}
	if cpr > 0 {
		proj.ResultsPred = spend / cpr
	}
	return proj
}

// BaselineProjection forecasts CPR weekOffset weeks ahead with no budget
// change. Only the organic slope enters here; elasticity never does.
func BaselineProjection(medianCPR, slope float64, weekOffset int) float64 {
	return medianCPR + slope*float64(weekOffset)
}

// Predict scores one account's ads. Each ad's latest feature row with a
// baseline supplies the trend; the elasticity ladder supplies k. Ads without
// a usable current CPR are skipped.
func (p *Predictor) Predict(features []domain.AdWeeklyFeature, results []domain.NormalizedWeeklyResult, globalEvents map[domain.ResultFamily][]GrowthEvent) []domain.BurnoutPrediction {
	seriesByAd := map[string][]domain.NormalizedWeeklyResult{}
	familyByAd := map[string]domain.ResultFamily{}
	latestFeature := map[string]domain.AdWeeklyFeature{}
	for _, f := range features {
		if cur, ok := latestFeature[f.AdID]; !ok || f.WeekStart.After(cur.WeekStart) {
			latestFeature[f.AdID] = f
			familyByAd[f.AdID] = f.Family
		}
	}
	for _, r := range results {
		if familyByAd[r.AdID] == r.Family {
			seriesByAd[r.AdID] = append(seriesByAd[r.AdID], r)
		}
	}

	accountEvents := map[domain.ResultFamily][]GrowthEvent{}
	adEvents := map[string][]GrowthEvent{}
	for adID, series := range seriesByAd {
		events := p.GrowthEvents(series)
		adEvents[adID] = events
		fam := familyByAd[adID]
		accountEvents[fam] = append(accountEvents[fam], events...)
	}

	adIDs := make([]string, 0, len(latestFeature))
	for adID := range latestFeature {
		adIDs = append(adIDs, adID)
	}
	sort.Strings(adIDs)

	var out []domain.BurnoutPrediction
	for _, adID := range adIDs {
		f := latestFeature[adID]
		if f.BaselineCPR == nil {
			continue
		}
		_, currentCPR, week, ok := latestObservation(seriesByAd[adID])
		if !ok {
			continue
		}
		fam := familyByAd[adID]
		k, source := p.PickElasticity(adEvents[adID], accountEvents[fam], globalEvents[fam])

		slope := 0.0
		if f.SlopeCPR != nil {
			slope = *f.SlopeCPR
		}
		pred1 := BaselineProjection(*f.BaselineCPR, slope, 1)
		pred2 := BaselineProjection(*f.BaselineCPR, slope, 2)
		score := p.riskScore(slope, currentCPR, k)

		out = append(out, domain.BurnoutPrediction{
			AdID:                 adID,
			AccountID:            f.AccountID,
			WeekStart:            week,
			Family:               fam,
			RiskScore:            score,
			RiskLevel:            domain.LevelForScore(score),
			PredictedCPRChange1W: changePct(pred1, currentCPR),
			PredictedCPRChange2W: changePct(pred2, currentCPR),
			TopDrivers:           p.topDrivers(f, k),
			ElasticitySource:     source,
			Elasticity:           k,
		})
	}
	return out
}

// riskScore blends organic drift with spend sensitivity into [0,1]. The
// trend term is the two-week slope drift as a fraction of current CPR; the
// scaling term is the CPR response to one more growth-sized spend step.
func (p *Predictor) riskScore(slope, currentCPR, k float64) float64 {
	trend := 0.0
	if currentCPR > 0 && slope > 0 {
		trend = clamp01(2 * slope / currentCPR)
	}
	scaling := 0.0
	if k > 0 {
		scaling = clamp01((math.Exp(k*math.Log(p.GrowthEventRatio)) - 1) * 10)
	}
	return clamp01(0.6*trend + 0.4*scaling)
}

func (p *Predictor) topDrivers(f domain.AdWeeklyFeature, k float64) []string {
	var drivers []string
	if f.SlopeCPR != nil && *f.SlopeCPR > 0 {
		drivers = append(drivers, "cpr_uptrend")
	}
	if f.SlopeFrequency != nil && *f.SlopeFrequency > 0 {
		drivers = append(drivers, "frequency_uptrend")
	}
	if f.SlopeCTR != nil && *f.SlopeCTR < 0 {
		drivers = append(drivers, "ctr_decline")
	}
	if k >= 0.3 {
		drivers = append(drivers, "high_spend_sensitivity")
	}
	return drivers
}

func latestObservation(series []domain.NormalizedWeeklyResult) (spend, cpr float64, week time.Time, ok bool) {
	for _, r := range series {
		if r.CPR == nil {
			continue
		}
		if !ok || r.WeekStart.After(week) {
			spend, cpr, week, ok = r.Spend, *r.CPR, r.WeekStart, true
		}
	}
	return
}

func changePct(predicted, current float64) float64 {
	if current == 0 {
		return 0
	}
	return (predicted - current) / current * 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
