package domain

import (
	"time"

	"github.com/google/uuid"
)

type InferenceStatus string

const (
	InferenceStatusPending   InferenceStatus = "pending"
	InferenceStatusConfirmed InferenceStatus = "confirmed"
	InferenceStatusRejected  InferenceStatus = "rejected"
	// InferenceStatusExpired is never persisted. It is the view of a pending
	// inference whose expires_at has passed.
	InferenceStatusExpired InferenceStatus = "expired"
)

func ValidInferenceStatus(s string) bool {
	switch InferenceStatus(s) {
	case InferenceStatusPending, InferenceStatusConfirmed, InferenceStatusRejected, InferenceStatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether a stored inference may move from one status to another.
// Only pending inferences can be resolved; confirmed and rejected are terminal.
func (s InferenceStatus) CanTransition(to InferenceStatus) bool {
	switch s {
	case InferenceStatusPending:
		switch to {
		case InferenceStatusConfirmed, InferenceStatusRejected:
			return true
		}
		return false
	case InferenceStatusConfirmed, InferenceStatusRejected, InferenceStatusExpired:
		return false
	}
	return false
}

// DefaultInferenceConfidence is used when a candidate carries no confidence.
const DefaultInferenceConfidence = 0.5

type Inference struct {
	ID             uuid.UUID       `json:"id"`
	SubjectID      *uuid.UUID      `json:"subject_id,omitempty"`
	ActorID        *uuid.UUID      `json:"actor_id,omitempty"`
	FactType       string          `json:"fact_type"`
	Payload        map[string]any  `json:"payload"`
	Confidence     float64         `json:"confidence"`
	Status         InferenceStatus `json:"status"`
	Source         string          `json:"source,omitempty"`
	DedupeKey      string          `json:"dedupe_key"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	LastPromptedAt *time.Time      `json:"last_prompted_at,omitempty"`
}

// Expired reports whether the inference has outlived its TTL at now.
func (i *Inference) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// ViewStatus returns the status callers should see at now. A pending
// inference past its expiry reads as expired; the stored row is untouched.
func (i *Inference) ViewStatus(now time.Time) InferenceStatus {
	if i.Status == InferenceStatusPending && i.Expired(now) {
		return InferenceStatusExpired
	}
	return i.Status
}

// Candidate is a proposed fact produced by an extractor.
type Candidate struct {
	SubjectID  *uuid.UUID
	ActorID    *uuid.UUID
	FactType   string
	Payload    map[string]any
	Confidence float64
	Source     string
}

type ResolveAction string

const (
	ResolveConfirmGeneral   ResolveAction = "confirm_general"
	ResolveConfirmQualified ResolveAction = "confirm_qualified"
	ResolveReject           ResolveAction = "reject"
)

func ValidResolveAction(a string) bool {
	switch ResolveAction(a) {
	case ResolveConfirmGeneral, ResolveConfirmQualified, ResolveReject:
		return true
	}
	return false
}
