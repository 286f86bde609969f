package anomaly

import (
	"context"
	"time"

	"github.com/ignite/adpulse/internal/domain"
	"github.com/ignite/adpulse/internal/pkg/logger"
)

// Source reads feature rows.
type Source interface {
	ListFeatures(ctx context.Context, accountID string, since time.Time) ([]domain.AdWeeklyFeature, error)
}

// Sink persists detected anomalies.
type Sink interface {
	UpsertAnomalies(ctx context.Context, anomalies []domain.Anomaly) error
}

// Service runs the anomaly step for single accounts.
type Service struct {
	source   Source
	sink     Sink
	detector *Detector
}

// New creates an anomaly service.
func New(source Source, sink Sink, detector *Detector) *Service {
	return &Service{source: source, sink: sink, detector: detector}
}

// DetectAccount scores one account's window and stores the anomalies.
func (s *Service) DetectAccount(ctx context.Context, accountID string, since time.Time) error {
	features, err := s.source.ListFeatures(ctx, accountID, since)
	if err != nil {
		return err
	}

	anomalies := s.detector.Detect(features)
	if err := s.sink.UpsertAnomalies(ctx, anomalies); err != nil {
		return err
	}

	logger.Info("account anomalies detected",
		"account_id", accountID,
		"feature_rows", len(features),
		"anomalies", len(anomalies))
	return nil
}
