// Package normalize converts raw conversion actions into canonical result
// families and computes cost-per-result. Normalization is a pure function of
// its inputs and config; re-running it over the same rows is a no-op.
package normalize

import (
	"sort"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

// FamilyCounts sums a record's actions into result families via the
// action-type mapping. Unmapped action types are ignored.
func FamilyCounts(actions []domain.ActionCount, mapping config.MappingConfig) map[domain.ResultFamily]float64 {
	counts := map[domain.ResultFamily]float64{}
	for _, a := range actions {
		if fam, ok := mapping.Actions[a.ActionType]; ok {
			counts[fam] += a.Count
		}
	}
	return counts
}

// PrimaryFamily selects the record's primary result family: the first
// candidate of the optimization goal with a nonzero count, else the goal's
// first candidate. An unknown goal falls back to the largest counted family
// (ties break alphabetically) so unmapped goals still produce a row.
func PrimaryFamily(goal string, counts map[domain.ResultFamily]float64, mapping config.MappingConfig) domain.ResultFamily {
	if candidates, ok := mapping.Goals[goal]; ok && len(candidates) > 0 {
		for _, fam := range candidates {
			if counts[fam] > 0 {
				return fam
			}
		}
		return candidates[0]
	}

	best := domain.ResultFamily("")
	for fam, n := range counts {
		if n <= 0 {
			continue
		}
		if best == "" || n > counts[best] || (n == counts[best] && fam < best) {
			best = fam
		}
	}
	return best
}

// Normalize derives per-family result rows from one account's raw weekly
// records. Every record emits a row for its primary family even at zero
// results; secondary families appear only when counted. CPR is nil when
// the result count is zero, never zero or infinity.
func Normalize(records []domain.WeeklyMetricRecord, goals map[string]string, mapping config.MappingConfig) []domain.NormalizedWeeklyResult {
	var out []domain.NormalizedWeeklyResult
	for _, rec := range records {
		counts := FamilyCounts(rec.Actions, mapping)
		primary := PrimaryFamily(goals[rec.AdID], counts, mapping)

		families := make([]domain.ResultFamily, 0, len(counts)+1)
		if primary != "" {
			families = append(families, primary)
		}
		for fam := range counts {
			if fam != primary && counts[fam] > 0 {
				families = append(families, fam)
			}
		}
		sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })

		for _, fam := range families {
			n := domain.NormalizedWeeklyResult{
				AdID:        rec.AdID,
				AccountID:   rec.AccountID,
				WeekStart:   rec.WeekStart,
				Family:      fam,
				Spend:       rec.Spend,
				ResultCount: counts[fam],
			}
			if n.ResultCount > 0 {
				cpr := n.Spend / n.ResultCount
				n.CPR = &cpr
			}
			out = append(out, n)
		}
	}
	return out
}
