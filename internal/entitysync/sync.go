// Package entitysync ingests one account's registry and raw metrics from the
// ads platform. It never derives anything; downstream steps work purely from
// the rows it writes.
package entitysync

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/adpulse/internal/ads"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// EntityStore persists registry snapshots.
type EntityStore interface {
	UpsertCampaigns(ctx context.Context, campaigns []domain.Campaign) error
	UpsertAdSets(ctx context.Context, adsets []domain.AdSet) error
	UpsertAds(ctx context.Context, ads []domain.AdEntity) error
}

// MetricStore persists raw metric rows.
type MetricStore interface {
	UpsertWeekly(ctx context.Context, records []domain.WeeklyMetricRecord) error
	UpsertDaily(ctx context.Context, records []domain.DailyMetricRecord) error
}

// ReportRunner drives one async report to fetched rows.
type ReportRunner interface {
	Run(ctx context.Context, account domain.AdAccount, window ads.ReportWindow, granularity ads.Granularity) ([]ads.ReportRow, error)
}

// Service syncs registries and metric windows for single accounts.
type Service struct {
	api      ads.API
	runner   ReportRunner
	entities EntityStore
	metrics  MetricStore

	lookbackWeeks     int
	dailyLookbackDays int
}

// New creates an entity sync service.
func New(api ads.API, runner ReportRunner, entities EntityStore, metrics MetricStore, lookbackWeeks, dailyLookbackDays int) *Service {
	return &Service{
		api:               api,
		runner:            runner,
		entities:          entities,
		metrics:           metrics,
		lookbackWeeks:     lookbackWeeks,
		dailyLookbackDays: dailyLookbackDays,
	}
}

// SyncAccount refreshes one account's campaign/adset/ad registries and ingests
// its weekly metrics window. Registry identity is immutable; mutable fields
// follow the platform.
func (s *Service) SyncAccount(ctx context.Context, account domain.AdAccount) error {
	tree, err := s.api.ListEntities(ctx, account)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}

	if err := s.entities.UpsertCampaigns(ctx, tree.Campaigns); err != nil {
		return err
	}
	if err := s.entities.UpsertAdSets(ctx, tree.AdSets); err != nil {
		return err
	}
	if err := s.entities.UpsertAds(ctx, tree.Ads); err != nil {
		return err
	}

	window := WeeklyWindow(time.Now().UTC(), s.lookbackWeeks)
	rows, err := s.runner.Run(ctx, account, window, ads.GranularityWeek)
	if err != nil {
		return fmt.Errorf("weekly report: %w", err)
	}

	records := make([]domain.WeeklyMetricRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.WeeklyRecord(account.ID)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := s.metrics.UpsertWeekly(ctx, records); err != nil {
		return err
	}

	logger.Info("account synced",
		"account_id", account.ID,
		"campaigns", len(tree.Campaigns),
		"adsets", len(tree.AdSets),
		"ads", len(tree.Ads),
		"weekly_rows", len(records))
	return nil
}

// DailyEnrich ingests the optional day-granularity window for one account.
func (s *Service) DailyEnrich(ctx context.Context, account domain.AdAccount) error {
	until := time.Now().UTC().Truncate(24 * time.Hour)
	window := ads.ReportWindow{
		Since: until.AddDate(0, 0, -s.dailyLookbackDays),
		Until: until,
	}

	rows, err := s.runner.Run(ctx, account, window, ads.GranularityDay)
	if err != nil {
		return fmt.Errorf("daily report: %w", err)
	}

	records := make([]domain.DailyMetricRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.DailyRecord(account.ID)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := s.metrics.UpsertDaily(ctx, records); err != nil {
		return err
	}

	logger.Info("account daily enriched", "account_id", account.ID, "daily_rows", len(records))
	return nil
}

// WeeklyWindow returns the Monday-aligned report window covering the last
// lookbackWeeks full weeks plus the current partial week.
func WeeklyWindow(now time.Time, lookbackWeeks int) ads.ReportWindow {
	monday := WeekStart(now)
	return ads.ReportWindow{
		Since: monday.AddDate(0, 0, -7*lookbackWeeks),
		Until: now.Truncate(24 * time.Hour).AddDate(0, 0, 1),
	}
}

// WeekStart returns the Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
