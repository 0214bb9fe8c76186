package extract

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHeuristic_Extract(t *testing.T) {
	h := NewHeuristic(zap.NewNop())

	got, err := h.Extract(context.Background(), "We follow Moms on Call for naps", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "care_framework", got[0].FactType)
	assert.Equal(t, Source, got[0].Source)
	assert.Equal(t, 0.5, got[0].Confidence)
	assert.Equal(t, "moms_on_call", got[0].Payload["framework"])
	assert.Equal(t, "We follow Moms on Call for naps", got[0].Payload["evidence"])
}

func TestHeuristic_ExtractEmpty(t *testing.T) {
	h := NewHeuristic(zap.NewNop())

	got, err := h.Extract(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHeuristic_ExtractCancelled(t *testing.T) {
	h := NewHeuristic(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Extract(ctx, "We follow Moms on Call", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeuristic_FactTypes(t *testing.T) {
	h := NewHeuristic(zap.NewNop())
	types := h.FactTypes()
	assert.Len(t, types, 11)
	assert.Equal(t, "care_framework", types[0])
	assert.Contains(t, types, "child_solids_profile")
}

func TestDetectFeedingStructure(t *testing.T) {
	got := detectFeedingStructure(newMessage("We do breast during the day", []domain.Event{{Kind: "feeding", Substance: "Formula"}}))
	require.NotNil(t, got)
	assert.Equal(t, "combo", got["structure"])

	assert.Nil(t, detectFeedingStructure(newMessage("We do breast during the day", nil)))
	assert.NotNil(t, detectFeedingStructure(newMessage("Combo feeding, breast plus a bottle", nil)))
}

func TestDetectActivities(t *testing.T) {
	got := detectActivities(newMessage("She loves water play and reading books outside", nil))
	require.NotNil(t, got)
	assert.Equal(t, []string{"water play", "reading books"}, got["favorite_activities"])
	assert.Equal(t, []string{"sensory", "water", "reading", "quiet_play", "outdoor"}, got["tags"])

	assert.Nil(t, detectActivities(newMessage("Nap went fine", nil)))
}

func TestDetectMilestones(t *testing.T) {
	got := detectMilestones(newMessage("He just started crawling and is babbling a lot", nil))
	require.NotNil(t, got)
	assert.Equal(t, "crawling", got["gross_motor"])
	assert.Equal(t, "babbling", got["language"])
	assert.NotContains(t, got, "fine_motor")

	assert.Nil(t, detectMilestones(newMessage("Maybe he is crawling soon", nil)))
}

func TestDetectMilestones_CurlyQuotes(t *testing.T) {
	got := detectMilestones(newMessage("She’s saying ‘mama’ and ‘dada’", nil))
	require.NotNil(t, got)
	assert.Equal(t, "first_words", got["language"])
}

func TestDetectBPAFree(t *testing.T) {
	got := detectBPAFree(newMessage("We only buy BPA-free bottles", nil))
	require.NotNil(t, got)
	assert.Equal(t, "bottles", got["scope"])

	got = detectBPAFree(newMessage("BPA free snack containers please", nil))
	require.NotNil(t, got)
	assert.Equal(t, "food_storage", got["scope"])

	assert.Nil(t, detectBPAFree(newMessage("I read an article about BPA-free plastic", nil)))
}

func TestDetectGearBudget(t *testing.T) {
	got := detectGearBudget(newMessage("Let's keep the stroller under $300", nil))
	require.NotNil(t, got)
	assert.Equal(t, 300.0, got["max_usd"])

	assert.Nil(t, detectGearBudget(newMessage("The stroller was great", nil)))
}

func TestDetectDailyOutdoor(t *testing.T) {
	tests := []struct {
		text string
		want any
	}{
		{"We get outside for 30 minutes every day", 30},
		{"We go outdoors for 2 hours daily", 120},
		{"Outside for an hour each day", 60},
		{"We like being outside every day", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := detectDailyOutdoor(newMessage(tt.text, nil))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got["target_minutes"])
		})
	}

	assert.Nil(t, detectDailyOutdoor(newMessage("We went outside yesterday", nil)))
}

func TestDetectPrematurity(t *testing.T) {
	got := detectPrematurity(newMessage("She was born at 34 weeks", nil))
	require.NotNil(t, got)
	assert.Equal(t, 34.0, got["gestational_age_weeks"])
	assert.Equal(t, 6.0, got["weeks_early"])
	assert.Equal(t, true, got["is_premature"])

	got = detectPrematurity(newMessage("He came 3.5 weeks early", nil))
	require.NotNil(t, got)
	assert.Equal(t, 36.5, got["gestational_age_weeks"])
	assert.Equal(t, true, got["is_premature"])

	got = detectPrematurity(newMessage("We spent a week in the NICU", nil))
	require.NotNil(t, got)
	assert.Equal(t, true, got["is_premature"])
	assert.NotContains(t, got, "weeks_early")

	assert.Nil(t, detectPrematurity(newMessage("I read about preterm babies", nil)))
}

func TestDetectPlaces(t *testing.T) {
	got := detectPlaces(newMessage("We usually go to the Riverside park in Austin", nil))
	require.NotNil(t, got)
	places, ok := got["places"].([]any)
	require.True(t, ok)
	require.Len(t, places, 1)
	place := places[0].(map[string]any)
	assert.Equal(t, "park", place["type"])
	assert.Equal(t, "Austin", place["city"])
	assert.Contains(t, place["name"], "Riverside Park")

	assert.Nil(t, detectPlaces(newMessage("We went to the park", nil)), "one-off visits are ignored")
}

func TestDetectPlaces_FallbackName(t *testing.T) {
	got := detectPlaces(newMessage("Every Friday grandma watches her", nil))
	require.NotNil(t, got)
	place := got["places"].([]any)[0].(map[string]any)
	assert.Equal(t, "grandparent_home", place["type"])
	assert.Equal(t, "Grandma near us", place["name"])
	assert.Nil(t, place["city"])
}

func TestDetectFamilyDiet(t *testing.T) {
	got := detectFamilyDiet(newMessage("We are vegetarian and avoid pork. He is allergic to peanuts and eggs.", nil))
	require.NotNil(t, got)
	assert.Equal(t, []string{"vegetarian"}, got["diet_patterns"])
	assert.Equal(t, []string{"pork"}, got["avoid_ingredients"])
	assert.Equal(t, []string{"egg", "peanut"}, got["allergies"])

	assert.Nil(t, detectFamilyDiet(newMessage("Dinner was pasta", nil)))
}

func TestDetectSolids(t *testing.T) {
	got := detectSolids(newMessage("She started solids at 6 months with avocado, doing baby-led", nil))
	require.NotNil(t, got)
	assert.Equal(t, true, got["solids_started"])
	assert.Equal(t, "blw", got["approach"])
	assert.Equal(t, 6.0, got["age_started_months"])
	assert.Equal(t, []string{"avocado"}, got["favorite_foods"])

	got = detectSolids(newMessage("He hasn't started solids yet", nil))
	require.NotNil(t, got)
	assert.Equal(t, false, got["solids_started"])

	assert.Nil(t, detectSolids(newMessage("She loves avocado", nil)))
}
