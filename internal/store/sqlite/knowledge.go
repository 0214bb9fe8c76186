package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"github.com/google/uuid"
)

const knowledgeColumns = `id, subject_id, key, type, status, payload, confidence, qualifier,
	created_at, updated_at, activated_at, last_prompted_at, last_prompted_session`

type KnowledgeStore struct {
	db  conn
	now func() time.Time
}

func NewKnowledgeStore(db *DB) *KnowledgeStore {
	return &KnowledgeStore{db: db, now: time.Now}
}

func scanKnowledge(row rowScanner) (*domain.KnowledgeItem, error) {
	var (
		k                     domain.KnowledgeItem
		kind, status, payload string
		qualifier             sql.NullString
		createdAt, updatedAt  int64
		activatedAt, prompted sql.NullInt64
		promptedSession       uuid.NullUUID
	)
	err := row.Scan(
		&k.ID, &k.SubjectID, &k.Key, &kind, &status, &payload, &k.Confidence, &qualifier,
		&createdAt, &updatedAt, &activatedAt, &prompted, &promptedSession,
	)
	if err != nil {
		return nil, err
	}
	k.Payload, err = decodePayload(payload)
	if err != nil {
		return nil, err
	}
	k.Type = domain.KnowledgeType(kind)
	k.Status = domain.KnowledgeStatus(status)
	if qualifier.Valid {
		q := qualifier.String
		k.Qualifier = &q
	}
	k.CreatedAt = fromMillis(createdAt)
	k.UpdatedAt = fromMillis(updatedAt)
	k.ActivatedAt = ptrMillis(activatedAt)
	k.LastPromptedAt = ptrMillis(prompted)
	k.LastPromptedSession = ptrUUID(promptedSession)
	return &k, nil
}

func getKnowledge(ctx context.Context, q conn, where string, args ...any) (*domain.KnowledgeItem, error) {
	k, err := scanKnowledge(q.QueryRowContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	return k, nil
}

func (s *KnowledgeStore) insert(ctx context.Context, q conn, k *domain.KnowledgeItem) error {
	payload, err := encodePayload(k.Payload)
	if err != nil {
		return err
	}
	if k.Payload == nil {
		k.Payload = map[string]any{}
	}

	now := fromMillis(toMillis(s.now()))
	k.ID = uuid.New()
	k.CreatedAt = now
	k.UpdatedAt = now
	k.ActivatedAt = nil
	if k.Status == domain.KnowledgeStatusActive {
		k.ActivatedAt = &now
	}

	var qualifier sql.NullString
	if k.Qualifier != nil {
		qualifier = sql.NullString{String: *k.Qualifier, Valid: true}
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO knowledge_items (id, subject_id, key, type, status, payload, confidence, qualifier,
			created_at, updated_at, activated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID.String(), k.SubjectID.String(), k.Key, string(k.Type), string(k.Status), payload, k.Confidence, qualifier,
		toMillis(now), toMillis(now), nullMillis(k.ActivatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert knowledge: %w", err)
	}
	return nil
}

func (s *KnowledgeStore) Create(ctx context.Context, k *domain.KnowledgeItem) error {
	return s.insert(ctx, s.db, k)
}

func (s *KnowledgeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.KnowledgeItem, error) {
	return getKnowledge(ctx, s.db, "id = ?", id.String())
}

func (s *KnowledgeStore) FindLatest(ctx context.Context, subjectID uuid.UUID, key string) (*domain.KnowledgeItem, error) {
	return getKnowledge(ctx, s.db,
		"subject_id = ? AND key = ? ORDER BY updated_at DESC, rowid DESC LIMIT 1",
		subjectID.String(), key)
}

func (s *KnowledgeStore) List(ctx context.Context, f domain.KnowledgeFilter) ([]domain.KnowledgeItem, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	conditions := []string{"subject_id = ?"}
	args := []any{f.SubjectID.String()}
	if f.Key != "" {
		conditions = append(conditions, "key = ?")
		args = append(args, f.Key)
	}
	if f.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*f.Status))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE `+strings.Join(conditions, " AND ")+
			` ORDER BY updated_at DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
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

// update applies set to one row, bumps updated_at and returns the row.
func (s *KnowledgeStore) update(ctx context.Context, q conn, id uuid.UUID, set string, args ...any) (*domain.KnowledgeItem, error) {
	now := toMillis(s.now())
	all := append([]any{}, args...)
	all = append(all, now, id.String())
	res, err := q.ExecContext(ctx,
		`UPDATE knowledge_items SET `+set+`, updated_at = ? WHERE id = ?`, all...)
	if err != nil {
		return nil, fmt.Errorf("update knowledge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update knowledge: %w", err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return getKnowledge(ctx, q, "id = ?", id.String())
}

func (s *KnowledgeStore) UpdatePayload(ctx context.Context, id uuid.UUID, payload map[string]any, status *domain.KnowledgeStatus) (*domain.KnowledgeItem, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return s.update(ctx, s.db, id, "payload = ?", raw)
	}
	return s.update(ctx, s.db, id,
		"payload = ?, activated_at = CASE WHEN ? = 'active' AND status <> 'active' THEN ? ELSE activated_at END, status = ?",
		raw, string(*status), toMillis(s.now()), string(*status))
}

func (s *KnowledgeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.KnowledgeStatus) (*domain.KnowledgeItem, error) {
	return s.update(ctx, s.db, id,
		"activated_at = CASE WHEN ? = 'active' AND status <> 'active' THEN ? ELSE activated_at END, status = ?",
		string(status), toMillis(s.now()), string(status))
}

func (s *KnowledgeStore) Activate(ctx context.Context, id uuid.UUID, payload map[string]any, confidence string, qualifier *string) (*domain.KnowledgeItem, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	var q sql.NullString
	if qualifier != nil {
		q = sql.NullString{String: *qualifier, Valid: true}
	}
	return s.update(ctx, s.db, id,
		"status = 'active', payload = ?, confidence = ?, qualifier = ?, activated_at = ?",
		raw, confidence, q, toMillis(s.now()))
}

func (s *KnowledgeStore) SetExplicit(ctx context.Context, subjectID uuid.UUID, key string, payload map[string]any) (*domain.KnowledgeItem, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	var result *domain.KnowledgeItem
	err := withTx(ctx, s.db, func(tx conn) error {
		existing, err := getKnowledge(ctx, tx,
			"subject_id = ? AND key = ? AND type = 'explicit' AND status = 'active' ORDER BY updated_at DESC, rowid DESC LIMIT 1",
			subjectID.String(), key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if existing != nil {
			raw, err := encodePayload(payload)
			if err != nil {
				return err
			}
			result, err = s.update(ctx, tx, existing.ID, "payload = ?", raw)
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE knowledge_items SET status = 'rejected', updated_at = ?
			 WHERE subject_id = ? AND key = ? AND type = 'inferred' AND status IN ('active', 'pending')`,
			toMillis(s.now()), subjectID.String(), key,
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
		if err := s.insert(ctx, tx, item); err != nil {
			return err
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
	args := []any{toMillis(at), nullUUID(sessionID)}
	for _, id := range ids {
		args = append(args, id.String())
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_items SET last_prompted_at = ?, last_prompted_session = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark knowledge prompted: %w", err)
	}
	return nil
}
