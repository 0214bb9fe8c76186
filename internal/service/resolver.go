package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"go.uber.org/zap"
)

var ErrInvalidCandidate = errors.New("candidate requires a fact_type")

// Resolver gives every detected fact a stable identity and makes repeated
// detection of the same fact converge on one inference row.
type Resolver struct {
	inferences domain.InferenceStore
	policy     *PolicyService
	now        func() time.Time
	logger     *zap.Logger
}

func NewResolver(inferences domain.InferenceStore, policy *PolicyService, logger *zap.Logger) *Resolver {
	return &Resolver{
		inferences: inferences,
		policy:     policy,
		now:        time.Now,
		logger:     logger,
	}
}

// ResolveOrCreate returns the inference for c's fingerprint, creating a
// pending one when none exists. An existing row is returned untouched,
// whatever its status.
func (r *Resolver) ResolveOrCreate(ctx context.Context, c domain.Candidate, ageWeeks *int) (*domain.Inference, bool, error) {
	if c.FactType == "" {
		return nil, false, ErrInvalidCandidate
	}
	key, err := Fingerprint(c.SubjectID, c.FactType, c.Payload)
	if err != nil {
		return nil, false, err
	}

	existing, err := r.inferences.GetByDedupeKey(ctx, key)
	if err == nil {
		r.logger.Debug("inference already known",
			zap.String("fact_type", c.FactType),
			zap.String("status", string(existing.Status)),
		)
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup inference: %w", err)
	}

	confidence := c.Confidence
	if confidence <= 0 {
		confidence = domain.DefaultInferenceConfidence
	}
	if confidence > 1 {
		confidence = 1
	}
	payload := c.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	expiresAt := r.policy.ExpiresAt(r.now(), ageWeeks)

	inf := &domain.Inference{
		SubjectID:  c.SubjectID,
		ActorID:    c.ActorID,
		FactType:   c.FactType,
		Payload:    payload,
		Confidence: confidence,
		Status:     domain.InferenceStatusPending,
		Source:     c.Source,
		DedupeKey:  key,
		ExpiresAt:  &expiresAt,
	}
	created, err := r.inferences.Create(ctx, inf)
	if err != nil {
		return nil, false, fmt.Errorf("create inference: %w", err)
	}
	if created {
		r.logger.Info("inference created",
			zap.String("id", inf.ID.String()),
			zap.String("fact_type", inf.FactType),
			zap.Float64("confidence", inf.Confidence),
			zap.Time("expires_at", expiresAt),
		)
	}
	return inf, created, nil
}
