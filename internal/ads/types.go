package ads

import (
	"context"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// API is the read-only surface the pipeline needs from the ads platform.
// The HTTP Client implements it; tests substitute fakes.
type API interface {
	ListEntities(ctx context.Context, account domain.AdAccount) (*EntityTree, error)
	SubmitReport(ctx context.Context, account domain.AdAccount, window ReportWindow, granularity Granularity) (string, error)
	PollReport(ctx context.Context, account domain.AdAccount, reportID string) (ReportStatus, error)
	FetchReport(ctx context.Context, account domain.AdAccount, reportID string) ([]ReportRow, error)
}

// EntityTree is one account's full registry snapshot.
type EntityTree struct {
	Campaigns []domain.Campaign
	AdSets    []domain.AdSet
	Ads       []domain.AdEntity
}

// ReportWindow is the half-open [Since, Until) date range of a report request.
type ReportWindow struct {
	Since time.Time
	Until time.Time
}

// Granularity selects report row bucketing.
type Granularity string

const (
	GranularityWeek Granularity = "week"
	GranularityDay  Granularity = "day"
)

// ReportStatus is the platform-side state of an async report job.
type ReportStatus string

const (
	ReportQueued   ReportStatus = "queued"
	ReportRunning  ReportStatus = "running"
	ReportReady    ReportStatus = "ready"
	ReportFailed   ReportStatus = "failed"
)

// ActionValue is one conversion-action entry as the platform reports it. The
// platform sends numeric values as strings.
type ActionValue struct {
	ActionType string  `json:"action_type"`
	Value      float64 `json:"value,string"`
}

// ReportRow is one raw metrics row from a fetched report.
type ReportRow struct {
	AdID              string        `json:"ad_id"`
	DateStart         string        `json:"date_start"` // YYYY-MM-DD
	Spend             float64       `json:"spend,string"`
	Impressions       int64         `json:"impressions,string"`
	Reach             int64         `json:"reach,string"`
	Frequency         float64       `json:"frequency,string"`
	CTR               float64       `json:"ctr,string"`
	LinkCTR           float64       `json:"inline_link_click_ctr,string"`
	CPM               float64       `json:"cpm,string"`
	QualityRanking    string        `json:"quality_ranking"`
	EngagementRanking string        `json:"engagement_rate_ranking"`
	ConversionRanking string        `json:"conversion_rate_ranking"`
	Actions           []ActionValue `json:"actions"`
}

func (r ReportRow) actionCounts() []domain.ActionCount {
	if len(r.Actions) == 0 {
		return nil
	}
	out := make([]domain.ActionCount, 0, len(r.Actions))
	for _, a := range r.Actions {
		out = append(out, domain.ActionCount{ActionType: a.ActionType, Count: a.Value})
	}
	return out
}

// RankingScore converts the platform's ranking enum to a numeric score so
// week-over-week deltas can be computed. Unreported rankings score 0 and are
// ignored by the feature computer.
func RankingScore(ranking string) float64 {
	switch ranking {
	case "above_average":
		return 3
	case "average":
		return 2
	case "below_average_35", "below_average_20", "below_average_10", "below_average":
		return 1
	default:
		return 0
	}
}

// WeeklyRecord converts a week-granularity report row into the storage shape.
func (r ReportRow) WeeklyRecord(accountID string) (domain.WeeklyMetricRecord, error) {
	week, err := time.Parse("2006-01-02", r.DateStart)
	if err != nil {
		return domain.WeeklyMetricRecord{}, &APIError{
			Kind:    domain.ErrTypeData,
			Message: "report row has unparseable date_start " + r.DateStart,
		}
	}
	return domain.WeeklyMetricRecord{
		AdID:              r.AdID,
		AccountID:         accountID,
		WeekStart:         week,
		Spend:             r.Spend,
		Impressions:       r.Impressions,
		Reach:             r.Reach,
		Frequency:         r.Frequency,
		CTR:               r.CTR,
		LinkCTR:           r.LinkCTR,
		CPM:               r.CPM,
		QualityRanking:    RankingScore(r.QualityRanking),
		EngagementRanking: RankingScore(r.EngagementRanking),
		ConversionRanking: RankingScore(r.ConversionRanking),
		Actions:           r.actionCounts(),
	}, nil
}

// DailyRecord converts a day-granularity report row into the storage shape.
func (r ReportRow) DailyRecord(accountID string) (domain.DailyMetricRecord, error) {
	day, err := time.Parse("2006-01-02", r.DateStart)
	if err != nil {
		return domain.DailyMetricRecord{}, &APIError{
			Kind:    domain.ErrTypeData,
			Message: "report row has unparseable date_start " + r.DateStart,
		}
	}
	return domain.DailyMetricRecord{
		AdID:      r.AdID,
		AccountID: accountID,
		Day:       day,
		Spend:     r.Spend,
		Actions:   r.actionCounts(),
	}, nil
}
