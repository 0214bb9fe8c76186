package service

import (
	"testing"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var schedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func pendingItem(key string) domain.KnowledgeItem {
	return domain.KnowledgeItem{
		ID:      uuid.New(),
		Key:     "family_diet",
		Type:    domain.KnowledgeTypeInferred,
		Status:  domain.KnowledgeStatusPending,
		Payload: map[string]any{domain.PayloadDedupeKey: key},
	}
}

func ago(d time.Duration) *time.Time {
	t := schedNow.Add(-d)
	return &t
}

func ids(items []domain.KnowledgeItem) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestSelectForPrompt_OnlyPending(t *testing.T) {
	active := pendingItem("k1")
	active.Status = domain.KnowledgeStatusActive
	pending := pendingItem("k2")

	got := SelectForPrompt([]domain.KnowledgeItem{active, pending}, PromptOptions{Now: schedNow, Cooldown: DefaultPromptCooldown})
	assert.Equal(t, []uuid.UUID{pending.ID}, ids(got))
}

func TestSelectForPrompt_ItemCooldown(t *testing.T) {
	recent := pendingItem("k1")
	recent.LastPromptedAt = ago(time.Hour)
	stale := pendingItem("k2")
	stale.LastPromptedAt = ago(13 * time.Hour)

	got := SelectForPrompt([]domain.KnowledgeItem{recent, stale}, PromptOptions{Now: schedNow, Cooldown: DefaultPromptCooldown})
	assert.Equal(t, []uuid.UUID{stale.ID}, ids(got))
}

func TestSelectForPrompt_InferenceCooldownAndRejection(t *testing.T) {
	cooling := pendingItem("k1")
	rejected := pendingItem("k2")
	ok := pendingItem("k3")

	got := SelectForPrompt([]domain.KnowledgeItem{cooling, rejected, ok}, PromptOptions{
		Now:      schedNow,
		Cooldown: DefaultPromptCooldown,
		Signals: map[string]InferenceSignal{
			"k1": {Status: domain.InferenceStatusPending, Confidence: 0.9, LastPromptedAt: ago(2 * time.Hour)},
			"k2": {Status: domain.InferenceStatusRejected, Confidence: 0.9},
			"k3": {Status: domain.InferenceStatusPending, Confidence: 0.9, LastPromptedAt: ago(24 * time.Hour)},
		},
	})
	assert.Equal(t, []uuid.UUID{ok.ID}, ids(got))
}

func TestSelectForPrompt_SkipsExpiredInference(t *testing.T) {
	expired := pendingItem("k1")
	live := pendingItem("k2")

	got := SelectForPrompt([]domain.KnowledgeItem{expired, live}, PromptOptions{
		Now:      schedNow,
		Cooldown: DefaultPromptCooldown,
		Signals: map[string]InferenceSignal{
			"k1": {Status: domain.InferenceStatusPending, Confidence: 0.9, Expired: true, RelatedToTurn: true},
			"k2": {Status: domain.InferenceStatusPending, Confidence: 0.9},
		},
	})
	assert.Equal(t, []uuid.UUID{live.ID}, ids(got))
}

func TestSelectForPrompt_ConfidenceBar(t *testing.T) {
	item := pendingItem("k1")
	signal := func(related bool) map[string]InferenceSignal {
		return map[string]InferenceSignal{"k1": {Status: domain.InferenceStatusPending, Confidence: 0.48, RelatedToTurn: related}}
	}
	items := []domain.KnowledgeItem{item}

	early := SelectForPrompt(items, PromptOptions{Now: schedNow, MinConfidence: 0.45, Signals: signal(false)})
	assert.Len(t, early, 1)

	later := SelectForPrompt(items, PromptOptions{Now: schedNow, MinConfidence: 0.55, Signals: signal(false)})
	assert.Empty(t, later)

	related := SelectForPrompt(items, PromptOptions{Now: schedNow, MinConfidence: 0.55, Signals: signal(true)})
	assert.Len(t, related, 1)
}

func TestSelectForPrompt_ItemWithoutInferenceIgnoresSignals(t *testing.T) {
	manual := pendingItem("")
	manual.Payload = map[string]any{}

	got := SelectForPrompt([]domain.KnowledgeItem{manual}, PromptOptions{Now: schedNow, MinConfidence: 0.99})
	assert.Len(t, got, 1)
}

func TestSelectForPrompt_Cap(t *testing.T) {
	items := []domain.KnowledgeItem{pendingItem("k1"), pendingItem("k2"), pendingItem("k3")}

	one := SelectForPrompt(items, PromptOptions{Now: schedNow, MaxPrompts: 1})
	assert.Equal(t, []uuid.UUID{items[0].ID}, ids(one))

	two := SelectForPrompt(items, PromptOptions{Now: schedNow, MaxPrompts: 2})
	assert.Len(t, two, 2)

	unlimited := SelectForPrompt(items, PromptOptions{Now: schedNow, MaxPrompts: 0})
	assert.Equal(t, ids(items), ids(unlimited))
}

func TestSelectForPrompt_EmptyInput(t *testing.T) {
	got := SelectForPrompt(nil, PromptOptions{Now: schedNow})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
