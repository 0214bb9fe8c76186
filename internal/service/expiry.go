package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ExpiryReport counts pending inferences that have outlived their TTL. The
// count is taken when asked for; nothing runs in the background and no row
// is touched, so an expired inference stays resolvable.
type ExpiryReport struct {
	inferences domain.InferenceStore
	logger     *zap.Logger
	now        func() time.Time
}

// NewExpiryReport also registers the knowledge.inferences.expired_pending
// gauge, which is evaluated on each metrics collection.
func NewExpiryReport(inferences domain.InferenceStore, logger *zap.Logger) *ExpiryReport {
	r := &ExpiryReport{inferences: inferences, logger: logger, now: time.Now}
	_, err := telemetry.Meter().Int64ObservableGauge("knowledge.inferences.expired_pending",
		metric.WithDescription("Pending inferences past their expiry"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			n, err := r.Count(ctx)
			if err != nil {
				return err
			}
			o.Observe(int64(n))
			return nil
		}),
	)
	if err != nil {
		logger.Warn("expired_pending gauge not registered", zap.Error(err))
	}
	return r
}

// Count returns the number of expired pending inferences across all subjects.
func (r *ExpiryReport) Count(ctx context.Context) (int, error) {
	expired := domain.InferenceStatusExpired
	infs, err := r.inferences.List(ctx, domain.InferenceFilter{Status: &expired, Now: r.now()})
	if err != nil {
		return 0, fmt.Errorf("list expired inferences: %w", err)
	}
	r.logger.Debug("expired pending inferences counted", zap.Int("count", len(infs)))
	return len(infs), nil
}
