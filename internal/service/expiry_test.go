package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExpiryReport_CountsWithoutWriting(t *testing.T) {
	clock := newTestClock()
	infs := newMemInferenceStore(clock.Now)
	ctx := context.Background()
	subject := uuid.New()

	soon := clock.Now().Add(time.Hour)
	later := clock.Now().Add(48 * time.Hour)
	for i, exp := range []time.Time{soon, later} {
		e := exp
		_, err := infs.Create(ctx, &domain.Inference{
			SubjectID:  &subject,
			FactType:   "family_diet",
			Confidence: 0.5,
			DedupeKey:  subject.String() + "::family_diet::" + string(rune('a'+i)),
			ExpiresAt:  &e,
		})
		require.NoError(t, err)
	}

	r := NewExpiryReport(infs, zap.NewNop())
	r.now = clock.Now

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Hour)
	n, err = r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, inf := range infs.rows {
		assert.Equal(t, domain.InferenceStatusPending, inf.Status)
	}
}
