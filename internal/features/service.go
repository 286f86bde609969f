package features

import (
	"context"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// Source reads the inputs of the feature step.
type Source interface {
	ListResults(ctx context.Context, accountID string, since time.Time) ([]domain.NormalizedWeeklyResult, error)
	ListWeekly(ctx context.Context, accountID string, since time.Time) ([]domain.WeeklyMetricRecord, error)
}

// Sink persists derived feature rows.
type Sink interface {
	UpsertFeatures(ctx context.Context, features []domain.AdWeeklyFeature) error
}

// Service runs the feature step for single accounts.
type Service struct {
	source   Source
	sink     Sink
	computer *Computer
}

// New creates a feature service.
func New(source Source, sink Sink, computer *Computer) *Service {
	return &Service{source: source, sink: sink, computer: computer}
}

// ComputeAccount derives and stores feature rows for one account's window.
func (s *Service) ComputeAccount(ctx context.Context, accountID string, since time.Time) error {
	results, err := s.source.ListResults(ctx, accountID, since)
	if err != nil {
		return err
	}
	metrics, err := s.source.ListWeekly(ctx, accountID, since)
	if err != nil {
		return err
	}

	rows := s.computer.Compute(results, metrics)
	if err := s.sink.UpsertFeatures(ctx, rows); err != nil {
		return err
	}

	withBaseline := 0
	for _, f := range rows {
		if f.BaselineCPR != nil {
			withBaseline++
		}
	}
	logger.Info("account features computed",
		"account_id", accountID,
		"feature_rows", len(rows),
		"with_baseline", withBaseline)
	return nil
}
