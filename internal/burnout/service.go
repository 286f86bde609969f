package burnout

import (
	"context"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// Source reads the inputs of the burnout step.
type Source interface {
	ListFeatures(ctx context.Context, accountID string, since time.Time) ([]domain.AdWeeklyFeature, error)
	ListResults(ctx context.Context, accountID string, since time.Time) ([]domain.NormalizedWeeklyResult, error)
	ListResultsByFamily(ctx context.Context, family domain.ResultFamily, since time.Time) ([]domain.NormalizedWeeklyResult, error)
}

// Sink persists predictions.
type Sink interface {
	UpsertPredictions(ctx context.Context, predictions []domain.BurnoutPrediction) error
}

// Service runs the burnout step for single accounts.
type Service struct {
	source    Source
	sink      Sink
	predictor *Predictor
}

// New creates a burnout service.
func New(source Source, sink Sink, predictor *Predictor) *Service {
	return &Service{source: source, sink: sink, predictor: predictor}
}

// PredictAccount forecasts one account's ads and stores the predictions. The
// global elasticity pools are recomputed from all accounts' stored results,
// so cross-account data participates without cross-account locking.
func (s *Service) PredictAccount(ctx context.Context, accountID string, since time.Time) error {
	features, err := s.source.ListFeatures(ctx, accountID, since)
	if err != nil {
		return err
	}
	results, err := s.source.ListResults(ctx, accountID, since)
	if err != nil {
		return err
	}

	families := map[domain.ResultFamily]bool{}
	for _, f := range features {
		families[f.Family] = true
	}

	globalEvents := map[domain.ResultFamily][]GrowthEvent{}
	for fam := range families {
		global, err := s.source.ListResultsByFamily(ctx, fam, since)
		if err != nil {
			return err
		}
		byAd := map[string][]domain.NormalizedWeeklyResult{}
		for _, r := range global {
			byAd[r.AdID] = append(byAd[r.AdID], r)
		}
		for _, series := range byAd {
			globalEvents[fam] = append(globalEvents[fam], s.predictor.GrowthEvents(series)...)
		}
	}

	predictions := s.predictor.Predict(features, results, globalEvents)
	if err := s.sink.UpsertPredictions(ctx, predictions); err != nil {
		return err
	}

	logger.Info("account burnout predicted",
		"account_id", accountID,
		"predictions", len(predictions))
	return nil
}
