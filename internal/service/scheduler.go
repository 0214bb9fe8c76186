package service

import (
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
)

const (
	DefaultPromptCooldown = 12 * time.Hour
	DefaultMaxPrompts     = 1
)

// InferenceSignal is what the scheduler needs to know about the inference
// behind a pending knowledge item.
type InferenceSignal struct {
	Status         domain.InferenceStatus
	Confidence     float64
	LastPromptedAt *time.Time
	// Expired is set when the inference is pending past its expiry. Expired
	// facts are not surfaced again.
	Expired bool
	// RelatedToTurn lets a low-confidence fact through when the current
	// message is about it.
	RelatedToTurn bool
}

type PromptOptions struct {
	Now      time.Time
	Cooldown time.Duration
	// MaxPrompts caps the selection. Zero means no cap.
	MaxPrompts    int
	MinConfidence float64
	// Signals is keyed by inference dedupe key.
	Signals map[string]InferenceSignal
}

// SelectForPrompt filters pending knowledge items down to the ones that may
// be surfaced this turn, preserving input order. It never writes; callers
// mark the returned items as prompted.
func SelectForPrompt(items []domain.KnowledgeItem, opts PromptOptions) []domain.KnowledgeItem {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	eligible := []domain.KnowledgeItem{}
	for _, item := range items {
		if item.Status != domain.KnowledgeStatusPending {
			continue
		}

		if sig, ok := opts.Signals[item.DedupeKey()]; ok && item.DedupeKey() != "" {
			if sig.Status == domain.InferenceStatusRejected || sig.Expired {
				continue
			}
			if withinCooldown(sig.LastPromptedAt, now, opts.Cooldown) {
				continue
			}
			if sig.Confidence < opts.MinConfidence && !sig.RelatedToTurn {
				continue
			}
		}

		if withinCooldown(item.LastPromptedAt, now, opts.Cooldown) {
			continue
		}

		eligible = append(eligible, item)
		if opts.MaxPrompts > 0 && len(eligible) >= opts.MaxPrompts {
			break
		}
	}
	return eligible
}

func withinCooldown(last *time.Time, now time.Time, cooldown time.Duration) bool {
	return last != nil && now.Sub(*last) < cooldown
}
