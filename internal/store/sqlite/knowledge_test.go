package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances one second per call so updated_at ordering is deterministic.
func stepClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newKnowledgeStore(t *testing.T) *KnowledgeStore {
	s := NewKnowledgeStore(openTestDB(t))
	s.now = stepClock()
	return s
}

func TestKnowledgeStore_CreateAndFindLatest(t *testing.T) {
	ctx := context.Background()
	s := newKnowledgeStore(t)
	subject := uuid.New()

	first := &domain.KnowledgeItem{
		SubjectID: subject, Key: "family_diet", Type: domain.KnowledgeTypeInferred,
		Status: domain.KnowledgeStatusPending, Payload: map[string]any{"diet": "vegetarian"},
	}
	require.NoError(t, s.Create(ctx, first))
	assert.Nil(t, first.ActivatedAt)

	second := &domain.KnowledgeItem{
		SubjectID: subject, Key: "family_diet", Type: domain.KnowledgeTypeInferred,
		Status: domain.KnowledgeStatusActive, Payload: map[string]any{"diet": "vegan"},
	}
	require.NoError(t, s.Create(ctx, second))
	assert.NotNil(t, second.ActivatedAt)

	latest, err := s.FindLatest(ctx, subject, "family_diet")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = s.UpdatePayload(ctx, first.ID, map[string]any{"diet": "pescatarian"}, nil)
	require.NoError(t, err)

	latest, err = s.FindLatest(ctx, subject, "family_diet")
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
	assert.Equal(t, "pescatarian", latest.Payload["diet"])
	assert.Equal(t, domain.KnowledgeStatusPending, latest.Status)

	_, err = s.FindLatest(ctx, subject, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKnowledgeStore_StatusUpdates(t *testing.T) {
	ctx := context.Background()
	s := newKnowledgeStore(t)

	item := &domain.KnowledgeItem{
		SubjectID: uuid.New(), Key: "child_prematurity", Type: domain.KnowledgeTypeInferred,
		Status: domain.KnowledgeStatusPending, Payload: map[string]any{"premature": true},
	}
	require.NoError(t, s.Create(ctx, item))

	qualifier := "sometimes"
	activated, err := s.Activate(ctx, item.ID, map[string]any{"premature": true, "source_inference_id": "abc"},
		domain.ConfidenceLow, &qualifier)
	require.NoError(t, err)
	assert.Equal(t, domain.KnowledgeStatusActive, activated.Status)
	assert.Equal(t, domain.ConfidenceLow, activated.Confidence)
	require.NotNil(t, activated.Qualifier)
	assert.Equal(t, "sometimes", *activated.Qualifier)
	assert.NotNil(t, activated.ActivatedAt)

	archived, err := s.UpdateStatus(ctx, item.ID, domain.KnowledgeStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, domain.KnowledgeStatusArchived, archived.Status)

	_, err = s.UpdateStatus(ctx, uuid.New(), domain.KnowledgeStatusArchived)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKnowledgeStore_SetExplicitWins(t *testing.T) {
	ctx := context.Background()
	s := newKnowledgeStore(t)
	subject := uuid.New()

	inferred := &domain.KnowledgeItem{
		SubjectID: subject, Key: "care_framework", Type: domain.KnowledgeTypeInferred,
		Status: domain.KnowledgeStatusActive, Payload: map[string]any{"framework": "montessori"},
	}
	require.NoError(t, s.Create(ctx, inferred))

	explicit, err := s.SetExplicit(ctx, subject, "care_framework", map[string]any{"framework": "rie"})
	require.NoError(t, err)
	assert.Equal(t, domain.KnowledgeTypeExplicit, explicit.Type)
	assert.Equal(t, domain.KnowledgeStatusActive, explicit.Status)

	old, err := s.GetByID(ctx, inferred.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KnowledgeStatusRejected, old.Status)

	again, err := s.SetExplicit(ctx, subject, "care_framework", map[string]any{"framework": "gentle"})
	require.NoError(t, err)
	assert.Equal(t, explicit.ID, again.ID, "explicit item is updated in place")
	assert.Equal(t, "gentle", again.Payload["framework"])

	active := domain.KnowledgeStatusActive
	items, err := s.List(ctx, domain.KnowledgeFilter{SubjectID: subject, Status: &active})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, explicit.ID, items[0].ID)
}

func TestKnowledgeStore_MarkPrompted(t *testing.T) {
	ctx := context.Background()
	s := newKnowledgeStore(t)

	item := &domain.KnowledgeItem{
		SubjectID: uuid.New(), Key: "family_diet", Type: domain.KnowledgeTypeInferred,
		Status: domain.KnowledgeStatusPending,
	}
	require.NoError(t, s.Create(ctx, item))

	session := uuid.New()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkPrompted(ctx, []uuid.UUID{item.ID}, &session, at))

	got, err := s.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastPromptedAt)
	assert.True(t, at.Equal(*got.LastPromptedAt))
	require.NotNil(t, got.LastPromptedSession)
	assert.Equal(t, session, *got.LastPromptedSession)
}
