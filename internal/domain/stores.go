package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InferenceFilter narrows an inference listing. Expired pending rows are
// excluded unless IncludeExpired is set or Status asks for expired.
type InferenceFilter struct {
	SubjectID      *uuid.UUID
	Status         *InferenceStatus
	FactType       string
	Limit          int
	IncludeExpired bool
	// Now is the wall-clock instant used for the expiry comparison.
	// Zero means time.Now().
	Now time.Time
}

// InferenceStore persists inferences and enforces their lifecycle edges.
type InferenceStore interface {
	// Create inserts a pending inference. When a row with the same dedupe key
	// already exists, inf is overwritten with that row and created is false.
	Create(ctx context.Context, inf *Inference) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*Inference, error)
	GetByDedupeKey(ctx context.Context, key string) (*Inference, error)
	GetByDedupeKeys(ctx context.Context, keys []string) ([]Inference, error)
	List(ctx context.Context, f InferenceFilter) ([]Inference, error)
	Transition(ctx context.Context, id uuid.UUID, to InferenceStatus) (*Inference, error)
	MarkPrompted(ctx context.Context, keys []string, at time.Time) error
	// RejectPending rejects every pending inference of factType for a subject.
	RejectPending(ctx context.Context, subjectID uuid.UUID, factType string) (int64, error)
}

type KnowledgeFilter struct {
	SubjectID uuid.UUID
	Key       string
	Status    *KnowledgeStatus
	Limit     int
}

// KnowledgeStore persists knowledge items keyed by (subject, key).
type KnowledgeStore interface {
	Create(ctx context.Context, k *KnowledgeItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*KnowledgeItem, error)
	// FindLatest returns the most recently updated item for the natural key.
	FindLatest(ctx context.Context, subjectID uuid.UUID, key string) (*KnowledgeItem, error)
	List(ctx context.Context, f KnowledgeFilter) ([]KnowledgeItem, error)
	UpdatePayload(ctx context.Context, id uuid.UUID, payload map[string]any, status *KnowledgeStatus) (*KnowledgeItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status KnowledgeStatus) (*KnowledgeItem, error)
	// Activate promotes an item to active with the confirmed payload and hints.
	Activate(ctx context.Context, id uuid.UUID, payload map[string]any, confidence string, qualifier *string) (*KnowledgeItem, error)
	// SetExplicit atomically writes an explicit fact and rejects active inferred ones for the key.
	SetExplicit(ctx context.Context, subjectID uuid.UUID, key string, payload map[string]any) (*KnowledgeItem, error)
	MarkPrompted(ctx context.Context, ids []uuid.UUID, sessionID *uuid.UUID, at time.Time) error
}

// Stores is the pair of stores one unit of work writes through.
type Stores struct {
	Inferences InferenceStore
	Knowledge  KnowledgeStore
}

// Transactor runs fn against stores bound to a single transaction. The
// transaction commits when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}

// Event is a structured event the turn handler already parsed from a message.
type Event struct {
	Kind      string         `json:"kind"`
	Substance string         `json:"substance,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Extractor proposes candidate facts from a message. Subject and actor are
// filled in by the caller.
type Extractor interface {
	Extract(ctx context.Context, text string, events []Event) ([]Candidate, error)
}
