package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
)

func testMapping() config.MappingConfig {
	return config.MappingConfig{
		Goals:   config.DefaultGoalFamilies(),
		Actions: config.DefaultActionFamilies(),
	}
}

func weekRecord(adID string, spend float64, actions ...domain.ActionCount) domain.WeeklyMetricRecord {
	return domain.WeeklyMetricRecord{
		AdID:      adID,
		AccountID: "111",
		WeekStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Spend:     spend,
		Actions:   actions,
	}
}

func TestNormalizeComputesCPR(t *testing.T) {
	records := []domain.WeeklyMetricRecord{
		weekRecord("a1", 100,
			domain.ActionCount{ActionType: "onsite_conversion.messaging_conversation_started_7d", Count: 20},
		),
	}
	goals := map[string]string{"a1": "CONVERSATIONS"}

	out := Normalize(records, goals, testMapping())
	require.Len(t, out, 1)
	assert.Equal(t, domain.FamilyMessages, out[0].Family)
	assert.Equal(t, 20.0, out[0].ResultCount)
	require.NotNil(t, out[0].CPR)
	assert.Equal(t, 5.0, *out[0].CPR)
}

func TestNormalizeZeroResultsKeepsNilCPR(t *testing.T) {
	records := []domain.WeeklyMetricRecord{weekRecord("a1", 80)}
	goals := map[string]string{"a1": "CONVERSATIONS"}

	out := Normalize(records, goals, testMapping())
	require.Len(t, out, 1)
	assert.Equal(t, domain.FamilyMessages, out[0].Family)
	assert.Equal(t, 0.0, out[0].ResultCount)
	assert.Nil(t, out[0].CPR)
}

func TestNormalizeGoalPriorityOrder(t *testing.T) {
	// LEAD_GENERATION prefers leadgen_form over website_lead; the form
	// family wins when both are counted.
	records := []domain.WeeklyMetricRecord{
		weekRecord("a1", 90,
			domain.ActionCount{ActionType: "leadgen_grouped", Count: 6},
			domain.ActionCount{ActionType: "offsite_conversion.fb_pixel_lead", Count: 3},
		),
	}
	goals := map[string]string{"a1": "LEAD_GENERATION"}

	out := Normalize(records, goals, testMapping())
	require.Len(t, out, 2)

	byFamily := map[domain.ResultFamily]domain.NormalizedWeeklyResult{}
	for _, r := range out {
		byFamily[r.Family] = r
	}
	assert.Equal(t, 6.0, byFamily[domain.FamilyLeadgenForm].ResultCount)
	assert.Equal(t, 3.0, byFamily[domain.FamilyWebsiteLead].ResultCount)
}

func TestNormalizeSecondaryCandidateWhenPrimaryEmpty(t *testing.T) {
	records := []domain.WeeklyMetricRecord{
		weekRecord("a1", 90,
			domain.ActionCount{ActionType: "offsite_conversion.fb_pixel_lead", Count: 4},
		),
	}
	goals := map[string]string{"a1": "LEAD_GENERATION"}

	out := Normalize(records, goals, testMapping())
	require.Len(t, out, 1)
	assert.Equal(t, domain.FamilyWebsiteLead, out[0].Family)
	assert.Equal(t, 4.0, out[0].ResultCount)
}

func TestNormalizeUnknownGoalFallsBackToLargestFamily(t *testing.T) {
	records := []domain.WeeklyMetricRecord{
		weekRecord("a1", 50,
			domain.ActionCount{ActionType: "link_click", Count: 120},
			domain.ActionCount{ActionType: "purchase", Count: 2},
		),
	}
	goals := map[string]string{"a1": "SOMETHING_NEW"}

	out := Normalize(records, goals, testMapping())
	require.Len(t, out, 2)

	families := []domain.ResultFamily{out[0].Family, out[1].Family}
	assert.Contains(t, families, domain.FamilyClick)
	assert.Contains(t, families, domain.FamilyPurchase)
}

func TestNormalizeUnmappedActionsIgnored(t *testing.T) {
	counts := FamilyCounts([]domain.ActionCount{
		{ActionType: "post_engagement", Count: 500},
		{ActionType: "purchase", Count: 3},
	}, testMapping())

	require.Len(t, counts, 1)
	assert.Equal(t, 3.0, counts[domain.FamilyPurchase])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	records := []domain.WeeklyMetricRecord{
		weekRecord("a1", 100,
			domain.ActionCount{ActionType: "purchase", Count: 5},
		),
	}
	goals := map[string]string{"a1": "PURCHASES"}

	first := Normalize(records, goals, testMapping())
	second := Normalize(records, goals, testMapping())
	assert.Equal(t, first, second)
}

func TestNormalizeNoActionsNoGoalEmitsNothing(t *testing.T) {
	records := []domain.WeeklyMetricRecord{weekRecord("a1", 40)}
	out := Normalize(records, map[string]string{}, testMapping())
	assert.Empty(t, out)
}
