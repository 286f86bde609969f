// Package features derives per-ad weekly statistical features from normalized
// results: trailing-median baselines, per-metric deltas, lag values and trend
// slopes. Ads are independent of each other, so computation is per-ad.
package features

import (
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// TrackedMetrics are the metric names deltas are computed for. Names match
// the trigger-threshold config keys.
var TrackedMetrics = []string{
	"cpr", "spend", "frequency", "cpm", "ctr", "link_ctr", "results",
	"quality_ranking", "engagement_ranking", "conversion_ranking",
}

// Computer derives feature rows. BaselineWeeks is the trailing window size;
// a week needs BaselineWeeks-1 eligible preceding weeks inside that window
// before it carries a baseline.
type Computer struct {
	BaselineWeeks int
	MinResults    map[domain.ResultFamily]float64
}

// NewComputer creates a feature computer.
func NewComputer(baselineWeeks int, minResults map[domain.ResultFamily]float64) *Computer {
	return &Computer{BaselineWeeks: baselineWeeks, MinResults: minResults}
}

// adWeek joins one ad-week's normalized result with its raw metrics.
type adWeek struct {
	week     time.Time
	cpr      *float64
	count    float64
	eligible bool
	metrics  map[string]float64
}

// Compute derives feature rows for one account from its normalized results
// and raw weekly metrics. Each ad contributes rows for its primary family
// only: the family with the largest total result count, ties broken
// alphabetically.
func (c *Computer) Compute(results []domain.NormalizedWeeklyResult, metrics []domain.WeeklyMetricRecord) []domain.AdWeeklyFeature {
	families := primaryFamilies(results)
	rawByAdWeek := map[string]map[time.Time]domain.WeeklyMetricRecord{}
	for _, m := range metrics {
		if rawByAdWeek[m.AdID] == nil {
			rawByAdWeek[m.AdID] = map[time.Time]domain.WeeklyMetricRecord{}
		}
		rawByAdWeek[m.AdID][m.WeekStart] = m
	}

	seriesByAd := map[string][]adWeek{}
	accountByAd := map[string]string{}
	for _, res := range results {
		if res.Family != families[res.AdID] {
			continue
		}
		accountByAd[res.AdID] = res.AccountID
		w := adWeek{
			week:    res.WeekStart,
			cpr:     res.CPR,
			count:   res.ResultCount,
			metrics: map[string]float64{"spend": res.Spend, "results": res.ResultCount},
		}
		minCount := c.MinResults[res.Family]
		w.eligible = res.CPR != nil && res.ResultCount >= minCount
		if w.eligible {
			w.metrics["cpr"] = *res.CPR
		}
		if raw, ok := rawByAdWeek[res.AdID][res.WeekStart]; ok {
			w.metrics["frequency"] = raw.Frequency
			w.metrics["cpm"] = raw.CPM
			w.metrics["ctr"] = raw.CTR
			w.metrics["link_ctr"] = raw.LinkCTR
			w.metrics["quality_ranking"] = raw.QualityRanking
			w.metrics["engagement_ranking"] = raw.EngagementRanking
			w.metrics["conversion_ranking"] = raw.ConversionRanking
		}
		seriesByAd[res.AdID] = append(seriesByAd[res.AdID], w)
	}

	adIDs := make([]string, 0, len(seriesByAd))
	for adID := range seriesByAd {
		adIDs = append(adIDs, adID)
	}
	sort.Strings(adIDs)

	var out []domain.AdWeeklyFeature
	for _, adID := range adIDs {
		series := seriesByAd[adID]
		sort.Slice(series, func(i, j int) bool { return series[i].week.Before(series[j].week) })
		for i := range series {
			out = append(out, c.featureRow(adID, accountByAd[adID], families[adID], series, i))
		}
	}
	return out
}

func (c *Computer) featureRow(adID, accountID string, family domain.ResultFamily, series []adWeek, i int) domain.AdWeeklyFeature {
	cur := series[i]
	f := domain.AdWeeklyFeature{
		AdID:      adID,
		AccountID: accountID,
		WeekStart: cur.week,
		Family:    family,
	}

	lo := i - c.BaselineWeeks
	if lo < 0 {
		lo = 0
	}
	window := series[lo:i]

	var priorCPR []float64
	for _, w := range window {
		if w.eligible {
			priorCPR = append(priorCPR, *w.cpr)
		}
	}
	f.EligiblePrior = len(priorCPR)

	if i >= 1 {
		f.Lag1CPR = series[i-1].cpr
	}
	if i >= 2 {
		f.Lag2CPR = series[i-2].cpr
	}

	// The baseline window needs all but one of its weeks eligible; with
	// fewer the row carries no baseline and stays out of anomaly scoring.
	if f.EligiblePrior >= c.BaselineWeeks-1 {
		if baseline, ok := Median(priorCPR); ok {
			f.BaselineCPR = &baseline
			f.DeltaPct = c.metricDeltas(cur, window)
		}
	}

	f.SlopeCPR = c.trailingSlope(series, i, "cpr")
	f.SlopeCTR = c.trailingSlope(series, i, "ctr")
	f.SlopeFrequency = c.trailingSlope(series, i, "frequency")
	return f
}

// metricDeltas computes each tracked metric's percent change against the
// median of the eligible prior weeks' own values. Rankings of zero mean the
// platform reported nothing and are excluded from both sides.
func (c *Computer) metricDeltas(cur adWeek, window []adWeek) map[string]float64 {
	deltas := map[string]float64{}
	for _, metric := range TrackedMetrics {
		curVal, ok := cur.metrics[metric]
		if !ok {
			continue
		}
		if isRanking(metric) && curVal == 0 {
			continue
		}

		var prior []float64
		for _, w := range window {
			if !w.eligible {
				continue
			}
			v, ok := w.metrics[metric]
			if !ok {
				continue
			}
			if isRanking(metric) && v == 0 {
				continue
			}
			prior = append(prior, v)
		}

		baseline, ok := Median(prior)
		if !ok {
			continue
		}
		if d, ok := DeltaPct(curVal, baseline); ok {
			deltas[metric] = d
		}
	}
	return deltas
}

// trailingSlope fits the metric over the trailing window ending at i.
func (c *Computer) trailingSlope(series []adWeek, i int, metric string) *float64 {
	lo := i - c.BaselineWeeks + 1
	if lo < 0 {
		lo = 0
	}
	var values []float64
	for _, w := range series[lo : i+1] {
		if v, ok := w.metrics[metric]; ok {
			values = append(values, v)
		}
	}
	if slope, ok := OLSSlope(values); ok {
		return &slope
	}
	return nil
}

func isRanking(metric string) bool {
	switch metric {
	case "quality_ranking", "engagement_ranking", "conversion_ranking":
		return true
	}
	return false
}

// primaryFamilies picks each ad's primary family: largest total result count,
// ties broken alphabetically so reruns agree.
func primaryFamilies(results []domain.NormalizedWeeklyResult) map[string]domain.ResultFamily {
	totals := map[string]map[domain.ResultFamily]float64{}
	for _, r := range results {
		if totals[r.AdID] == nil {
			totals[r.AdID] = map[domain.ResultFamily]float64{}
		}
		totals[r.AdID][r.Family] += r.ResultCount
	}

	out := map[string]domain.ResultFamily{}
	for adID, byFamily := range totals {
		best := domain.ResultFamily("")
		for fam, n := range byFamily {
			if best == "" || n > byFamily[best] || (n == byFamily[best] && fam < best) {
				best = fam
			}
		}
		out[adID] = best
	}
	return out
}
