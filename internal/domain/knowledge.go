package domain

import (
	"time"

	"github.com/google/uuid"
)

type KnowledgeType string

const (
	KnowledgeTypeExplicit KnowledgeType = "explicit"
	KnowledgeTypeInferred KnowledgeType = "inferred"
)

func ValidKnowledgeType(t string) bool {
	switch KnowledgeType(t) {
	case KnowledgeTypeExplicit, KnowledgeTypeInferred:
		return true
	}
	return false
}

type KnowledgeStatus string

const (
	KnowledgeStatusActive   KnowledgeStatus = "active"
	KnowledgeStatusPending  KnowledgeStatus = "pending"
	KnowledgeStatusRejected KnowledgeStatus = "rejected"
	KnowledgeStatusArchived KnowledgeStatus = "archived"
)

func ValidKnowledgeStatus(s string) bool {
	switch KnowledgeStatus(s) {
	case KnowledgeStatusActive, KnowledgeStatusPending, KnowledgeStatusRejected, KnowledgeStatusArchived:
		return true
	}
	return false
}

// Live reports whether an item still participates in merges and reads.
func (s KnowledgeStatus) Live() bool {
	switch s {
	case KnowledgeStatusActive, KnowledgeStatusPending:
		return true
	case KnowledgeStatusRejected, KnowledgeStatusArchived:
		return false
	}
	return false
}

// Confidence hints recorded when a user confirms an inferred fact.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Reserved payload fields.
const (
	PayloadDedupeKey         = "_dedupe_key"
	PayloadSourceInferenceID = "source_inference_id"
	PayloadSource            = "source"
)

type KnowledgeItem struct {
	ID                  uuid.UUID       `json:"id"`
	SubjectID           uuid.UUID       `json:"subject_id"`
	Key                 string          `json:"key"`
	Type                KnowledgeType   `json:"type"`
	Status              KnowledgeStatus `json:"status"`
	Payload             map[string]any  `json:"payload"`
	Confidence          string          `json:"confidence,omitempty"`
	Qualifier           *string         `json:"qualifier,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ActivatedAt         *time.Time      `json:"activated_at,omitempty"`
	LastPromptedAt      *time.Time      `json:"last_prompted_at,omitempty"`
	LastPromptedSession *uuid.UUID      `json:"last_prompted_session,omitempty"`
}

// DedupeKey returns the back-reference to the originating inference, if any.
func (k *KnowledgeItem) DedupeKey() string {
	if k.Payload == nil {
		return ""
	}
	s, _ := k.Payload[PayloadDedupeKey].(string)
	return s
}
