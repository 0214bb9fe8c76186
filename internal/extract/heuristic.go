// Package extract proposes candidate household facts from caregiver messages
// using keyword and pattern heuristics.
package extract

import (
	"context"
	"strings"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const (
	// Source tags every candidate produced here.
	Source = "text_heuristic"
	// payloadSource is the human-readable tag carried inside payloads.
	payloadSource     = "chat"
	defaultConfidence = 0.5
)

// message holds the forms of a text the detectors match against.
type message struct {
	// raw is the trimmed original text.
	raw string
	// folded is NFKC-normalised with curly quotes straightened.
	folded string
	// lower is folded in lower case.
	lower  string
	events []domain.Event
}

func newMessage(text string, events []domain.Event) message {
	raw := strings.TrimSpace(text)
	folded := strings.NewReplacer("’", "'", "‘", "'").Replace(norm.NFKC.String(raw))
	return message{raw: raw, folded: folded, lower: strings.ToLower(folded), events: events}
}

func (m message) containsAny(words ...string) bool {
	for _, w := range words {
		if strings.Contains(m.lower, w) {
			return true
		}
	}
	return false
}

type detector struct {
	factType string
	detect   func(m message) map[string]any
}

// Heuristic implements domain.Extractor with a fixed, ordered set of detectors.
type Heuristic struct {
	detectors []detector
	logger    *zap.Logger
}

func NewHeuristic(logger *zap.Logger) *Heuristic {
	return &Heuristic{
		logger: logger,
		detectors: []detector{
			{"care_framework", detectCareFramework},
			{"feeding_structure", detectFeedingStructure},
			{"child_activity_preferences", detectActivities},
			{"child_milestone_profile", detectMilestones},
			{"pref_bpa_free_products", detectBPAFree},
			{"pref_baby_gear_budget", detectGearBudget},
			{"pref_outdoor_time_daily", detectDailyOutdoor},
			{"child_prematurity", detectPrematurity},
			{"places_of_interest", detectPlaces},
			{"family_diet", detectFamilyDiet},
			{"child_solids_profile", detectSolids},
		},
	}
}

// FactTypes lists the fact types this extractor can emit, in detection order.
func (h *Heuristic) FactTypes() []string {
	out := make([]string, len(h.detectors))
	for i, d := range h.detectors {
		out[i] = d.factType
	}
	return out
}

func (h *Heuristic) Extract(ctx context.Context, text string, events []domain.Event) ([]domain.Candidate, error) {
	m := newMessage(text, events)
	if m.raw == "" {
		return nil, nil
	}

	var out []domain.Candidate
	for _, d := range h.detectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload := d.detect(m)
		if payload == nil {
			continue
		}
		out = append(out, domain.Candidate{
			FactType:   d.factType,
			Payload:    payload,
			Confidence: defaultConfidence,
			Source:     Source,
		})
	}
	if len(out) > 0 {
		h.logger.Debug("heuristic candidates", zap.Int("count", len(out)), zap.Strings("fact_types", factTypes(out)))
	}
	return out, nil
}

func factTypes(cs []domain.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.FactType
	}
	return out
}
