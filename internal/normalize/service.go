package normalize

import (
	"context"
	"time"

	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// MetricSource reads raw weekly rows and the ad -> optimization goal map.
type MetricSource interface {
	ListWeekly(ctx context.Context, accountID string, since time.Time) ([]domain.WeeklyMetricRecord, error)
	AdGoals(ctx context.Context, accountID string) (map[string]string, error)
}

// ResultSink persists normalized rows.
type ResultSink interface {
	UpsertResults(ctx context.Context, results []domain.NormalizedWeeklyResult) error
}

// Service runs the normalize step for single accounts.
type Service struct {
	source  MetricSource
	sink    ResultSink
	mapping config.MappingConfig
}

// New creates a normalize service.
func New(source MetricSource, sink ResultSink, mapping config.MappingConfig) *Service {
	return &Service{source: source, sink: sink, mapping: mapping}
}

// NormalizeAccount derives and stores normalized results for one account's
// window starting at since.
func (s *Service) NormalizeAccount(ctx context.Context, accountID string, since time.Time) error {
	records, err := s.source.ListWeekly(ctx, accountID, since)
	if err != nil {
		return err
	}
	goals, err := s.source.AdGoals(ctx, accountID)
	if err != nil {
		return err
	}

	results := Normalize(records, goals, s.mapping)
	if err := s.sink.UpsertResults(ctx, results); err != nil {
		return err
	}

	logger.Info("account normalized",
		"account_id", accountID,
		"raw_rows", len(records),
		"result_rows", len(results))
	return nil
}
