package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const knowledgeColumns = `id, subject_id, key, type, status, payload, confidence, qualifier,
	created_at, updated_at, activated_at, last_prompted_at, last_prompted_session`

type KnowledgeStore struct {
	db dbtx
}

func NewKnowledgeStore(db *pgxpool.Pool) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanKnowledge(row rowScanner) (*domain.KnowledgeItem, error) {
	k := &domain.KnowledgeItem{}
	err := row.Scan(
		&k.ID, &k.SubjectID, &k.Key, &k.Type, &k.Status, &k.Payload, &k.Confidence, &k.Qualifier,
		&k.CreatedAt, &k.UpdatedAt, &k.ActivatedAt, &k.LastPromptedAt, &k.LastPromptedSession,
	)
	if err != nil {
		return nil, err
	}
	if k.Payload == nil {
		k.Payload = map[string]any{}
	}
	return k, nil
}

func getKnowledge(row pgx.Row) (*domain.KnowledgeItem, error) {
	k, err := scanKnowledge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

func insertKnowledge(ctx context.Context, q querier, k *domain.KnowledgeItem) error {
	if k.Payload == nil {
		k.Payload = map[string]any{}
	}
	return q.QueryRow(ctx,
		`INSERT INTO knowledge_items (subject_id, key, type, status, payload, confidence, qualifier, activated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $4 = 'active' THEN NOW() END)
		 RETURNING id, created_at, updated_at, activated_at`,
		k.SubjectID, k.Key, k.Type, k.Status, k.Payload, k.Confidence, k.Qualifier,
	).Scan(&k.ID, &k.CreatedAt, &k.UpdatedAt, &k.ActivatedAt)
}

func (s *KnowledgeStore) Create(ctx context.Context, k *domain.KnowledgeItem) error {
	return insertKnowledge(ctx, s.db, k)
}

func (s *KnowledgeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.KnowledgeItem, error) {
	return getKnowledge(s.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE id = $1`, id))
}

func (s *KnowledgeStore) FindLatest(ctx context.Context, subjectID uuid.UUID, key string) (*domain.KnowledgeItem, error) {
	return getKnowledge(s.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items
		 WHERE subject_id = $1 AND key = $2
		 ORDER BY updated_at DESC LIMIT 1`,
		subjectID, key))
}

func (s *KnowledgeStore) List(ctx context.Context, f domain.KnowledgeFilter) ([]domain.KnowledgeItem, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	conditions := []string{"subject_id = $1"}
	args := []any{f.SubjectID}

	if f.Key != "" {
		args = append(args, f.Key)
		conditions = append(conditions, fmt.Sprintf("key = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT %s FROM knowledge_items WHERE %s ORDER BY updated_at DESC LIMIT $%d`,
		knowledgeColumns, strings.Join(conditions, " AND "), len(args),
	)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	return collectKnowledge(rows)
}

func (s *KnowledgeStore) UpdatePayload(ctx context.Context, id uuid.UUID, payload map[string]any, status *domain.KnowledgeStatus) (*domain.KnowledgeItem, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	return getKnowledge(s.db.QueryRow(ctx,
		`UPDATE knowledge_items
		 SET payload = $2,
		     status = COALESCE($3, status),
		     activated_at = CASE WHEN $3 = 'active' AND status <> 'active' THEN NOW() ELSE activated_at END,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+knowledgeColumns,
		id, payload, statusArg))
}

func (s *KnowledgeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.KnowledgeStatus) (*domain.KnowledgeItem, error) {
	return getKnowledge(s.db.QueryRow(ctx,
		`UPDATE knowledge_items
		 SET status = $2,
		     activated_at = CASE WHEN $2 = 'active' AND status <> 'active' THEN NOW() ELSE activated_at END,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+knowledgeColumns,
		id, status))
}

func (s *KnowledgeStore) Activate(ctx context.Context, id uuid.UUID, payload map[string]any, confidence string, qualifier *string) (*domain.KnowledgeItem, error) {
	return getKnowledge(s.db.QueryRow(ctx,
		`UPDATE knowledge_items
		 SET status = 'active', payload = $2, confidence = $3, qualifier = $4,
		     activated_at = NOW(), updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+knowledgeColumns,
		id, payload, confidence, qualifier))
}

// SetExplicit runs in one transaction: an active explicit item for the key is
// updated in place, otherwise live inferred items are rejected and a fresh
// explicit item is inserted.
func (s *KnowledgeStore) SetExplicit(ctx context.Context, subjectID uuid.UUID, key string, payload map[string]any) (*domain.KnowledgeItem, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	var result *domain.KnowledgeItem
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		existing, err := getKnowledge(tx.QueryRow(ctx,
			`SELECT `+knowledgeColumns+` FROM knowledge_items
			 WHERE subject_id = $1 AND key = $2 AND type = 'explicit' AND status = 'active'
			 ORDER BY updated_at DESC LIMIT 1
			 FOR UPDATE`,
			subjectID, key))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil {
			result, err = getKnowledge(tx.QueryRow(ctx,
				`UPDATE knowledge_items SET payload = $2, status = 'active', updated_at = NOW()
				 WHERE id = $1
				 RETURNING `+knowledgeColumns,
				existing.ID, payload))
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE knowledge_items SET status = 'rejected', updated_at = NOW()
			 WHERE subject_id = $1 AND key = $2 AND type = 'inferred' AND status IN ('active', 'pending')`,
			subjectID, key,
		); err != nil {
			return fmt.Errorf("reject inferred knowledge: %w", err)
		}

		item := &domain.KnowledgeItem{
			SubjectID: subjectID,
			Key:       key,
			Type:      domain.KnowledgeTypeExplicit,
			Status:    domain.KnowledgeStatusActive,
			Payload:   payload,
		}
		if err := insertKnowledge(ctx, tx, item); err != nil {
			return fmt.Errorf("insert explicit knowledge: %w", err)
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *KnowledgeStore) MarkPrompted(ctx context.Context, ids []uuid.UUID, sessionID *uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE knowledge_items SET last_prompted_at = $1, last_prompted_session = $2 WHERE id = ANY($3)`,
		at, sessionID, ids,
	)
	return err
}

func collectKnowledge(rows pgx.Rows) ([]domain.KnowledgeItem, error) {
	defer rows.Close()

	var results []domain.KnowledgeItem
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge row: %w", err)
		}
		results = append(results, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge rows: %w", err)
	}
	return results, nil
}
