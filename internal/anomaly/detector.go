// Package anomaly flags cost-per-result spikes from derived feature rows.
// A week must pass the family eligibility gate and carry a baseline before it
// can produce an anomaly; excluded weeks are not "no anomaly", they are
// unscored.
package anomaly

import (
	"sort"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// Detector evaluates feature rows against the spike threshold.
type Detector struct {
	// SpikeThreshold is the multiplicative CPR threshold; 1.20 fires at a
	// 20 percent increase over baseline.
	SpikeThreshold float64

	// TriggerThresholds maps tracked metric -> signed significance
	// threshold in percent. Positive means an increase is bad, negative
	// means a decrease is bad.
	TriggerThresholds map[string]float64

	// BaselineWeeks sizes the confidence denominator.
	BaselineWeeks int
}

// NewDetector creates a detector.
func NewDetector(spikeThreshold float64, triggerThresholds map[string]float64, baselineWeeks int) *Detector {
	return &Detector{
		SpikeThreshold:    spikeThreshold,
		TriggerThresholds: triggerThresholds,
		BaselineWeeks:     baselineWeeks,
	}
}

// Detect scores one account's feature rows. Rows without a baseline or
// without a current-week CPR delta never fire.
func (d *Detector) Detect(features []domain.AdWeeklyFeature) []domain.Anomaly {
	byAdWeek := map[string]map[time.Time]domain.AdWeeklyFeature{}
	for _, f := range features {
		if byAdWeek[f.AdID] == nil {
			byAdWeek[f.AdID] = map[time.Time]domain.AdWeeklyFeature{}
		}
		byAdWeek[f.AdID][f.WeekStart] = f
	}

	firePct := (d.SpikeThreshold - 1) * 100

	var out []domain.Anomaly
	for _, f := range features {
		if f.BaselineCPR == nil {
			continue
		}
		deltaCPR, ok := f.DeltaPct["cpr"]
		if !ok || deltaCPR < firePct {
			continue
		}

		current := *f.BaselineCPR * (1 + deltaCPR/100)
		a := domain.Anomaly{
			AdID:          f.AdID,
			AccountID:     f.AccountID,
			WeekStart:     f.WeekStart,
			Family:        f.Family,
			Type:          "cpr_spike",
			CurrentValue:  current,
			BaselineValue: *f.BaselineCPR,
			DeltaPct:      deltaCPR,
			AnomalyScore:  Score(deltaCPR),
			Confidence:    d.confidence(f),
			LikelyTriggers: d.triggers(f.DeltaPct),
			PrecedingDeviations: d.precedingDeviations(byAdWeek[f.AdID], f.WeekStart),
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekStart.Equal(out[j].WeekStart) {
			return out[i].WeekStart.Before(out[j].WeekStart)
		}
		return out[i].AdID < out[j].AdID
	})
	return out
}

// Score maps a CPR delta percentage to [0,1]. Monotonic in the delta: a
// bigger spike never scores lower.
func Score(deltaPct float64) float64 {
	if deltaPct <= 0 {
		return 0
	}
	s := deltaPct / 100
	if s > 1 {
		return 1
	}
	return s
}

func (d *Detector) confidence(f domain.AdWeeklyFeature) float64 {
	if d.BaselineWeeks <= 0 {
		return 1
	}
	c := float64(f.EligiblePrior) / float64(d.BaselineWeeks)
	if c > 1 {
		return 1
	}
	return c
}

// triggers collects every tracked metric whose delta breached its threshold
// in the bad direction. The set carries no ordering.
func (d *Detector) triggers(deltas map[string]float64) []domain.Trigger {
	var out []domain.Trigger
	for metric, threshold := range d.TriggerThresholds {
		delta, ok := deltas[metric]
		if !ok {
			continue
		}
		breached := (threshold > 0 && delta >= threshold) ||
			(threshold < 0 && delta <= threshold)
		if breached {
			out = append(out, domain.Trigger{Metric: metric, DeltaPct: delta, Threshold: threshold})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// precedingDeviations carries the anomaly week's deltas plus the prior two
// weeks' deltas, each computed against its own baseline.
func (d *Detector) precedingDeviations(byWeek map[time.Time]domain.AdWeeklyFeature, week time.Time) map[string]map[string]float64 {
	out := map[string]map[string]float64{}
	keys := []string{"week_0", "week_-1", "week_-2"}
	for i, key := range keys {
		w := week.AddDate(0, 0, -7*i)
		f, ok := byWeek[w]
		if !ok || len(f.DeltaPct) == 0 {
			continue
		}
		deltas := make(map[string]float64, len(f.DeltaPct))
		for k, v := range f.DeltaPct {
			deltas[k] = v
		}
		out[key] = deltas
	}
	return out
}
