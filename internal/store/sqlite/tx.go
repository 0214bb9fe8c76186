package sqlite

import (
	"context"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
)

// Transactor binds both stores to one SQLite transaction.
type Transactor struct {
	db  *DB
	now func() time.Time
}

func NewTransactor(db *DB) *Transactor {
	return &Transactor{db: db, now: time.Now}
}

// InTx commits when fn returns nil and rolls back otherwise.
func (t *Transactor) InTx(ctx context.Context, fn func(domain.Stores) error) error {
	return withTx(ctx, t.db, func(c conn) error {
		return fn(domain.Stores{
			Inferences: &InferenceStore{db: c, now: t.now},
			Knowledge:  &KnowledgeStore{db: c, now: t.now},
		})
	})
}
