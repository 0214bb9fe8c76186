package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"github.com/google/uuid"
)

const defaultListLimit = 50

const inferenceColumns = `id, subject_id, actor_id, fact_type, payload, confidence, status, source, dedupe_key,
	created_at, updated_at, expires_at, last_prompted_at`

type InferenceStore struct {
	db conn
	// now is swapped in tests.
	now func() time.Time
}

func NewInferenceStore(db *DB) *InferenceStore {
	return &InferenceStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func ptrUUID(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func encodePayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

func decodePayload(raw string) (map[string]any, error) {
	p := map[string]any{}
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		p = map[string]any{}
	}
	return p, nil
}

func scanInference(row rowScanner) (*domain.Inference, error) {
	var (
		inf                     domain.Inference
		subjectID, actorID      uuid.NullUUID
		payload, status         string
		createdAt, updatedAt    int64
		expiresAt, lastPrompted sql.NullInt64
	)
	err := row.Scan(
		&inf.ID, &subjectID, &actorID, &inf.FactType, &payload, &inf.Confidence,
		&status, &inf.Source, &inf.DedupeKey, &createdAt, &updatedAt,
		&expiresAt, &lastPrompted,
	)
	if err != nil {
		return nil, err
	}
	inf.Payload, err = decodePayload(payload)
	if err != nil {
		return nil, err
	}
	inf.SubjectID = ptrUUID(subjectID)
	inf.ActorID = ptrUUID(actorID)
	inf.Status = domain.InferenceStatus(status)
	inf.CreatedAt = fromMillis(createdAt)
	inf.UpdatedAt = fromMillis(updatedAt)
	inf.ExpiresAt = ptrMillis(expiresAt)
	inf.LastPromptedAt = ptrMillis(lastPrompted)
	return &inf, nil
}

func (s *InferenceStore) Create(ctx context.Context, inf *domain.Inference) (bool, error) {
	if inf.Status == "" {
		inf.Status = domain.InferenceStatusPending
	}
	if inf.Payload == nil {
		inf.Payload = map[string]any{}
	}
	payload, err := encodePayload(inf.Payload)
	if err != nil {
		return false, err
	}

	id := uuid.New()
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inferences (id, subject_id, actor_id, fact_type, payload, confidence, status, source, dedupe_key,
			created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		id.String(), nullUUID(inf.SubjectID), nullUUID(inf.ActorID), inf.FactType, payload, inf.Confidence,
		string(inf.Status), inf.Source, inf.DedupeKey, toMillis(now), toMillis(now), nullMillis(inf.ExpiresAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert inference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert inference: %w", err)
	}
	if n == 1 {
		inf.ID = id
		inf.CreatedAt = fromMillis(toMillis(now))
		inf.UpdatedAt = inf.CreatedAt
		return true, nil
	}

	existing, err := s.GetByDedupeKey(ctx, inf.DedupeKey)
	if err != nil {
		return false, err
	}
	*inf = *existing
	return false, nil
}

func (s *InferenceStore) get(ctx context.Context, where string, arg any) (*domain.Inference, error) {
	inf, err := scanInference(s.db.QueryRowContext(ctx,
		`SELECT `+inferenceColumns+` FROM inferences WHERE `+where+` LIMIT 1`, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get inference: %w", err)
	}
	return inf, nil
}

func (s *InferenceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Inference, error) {
	return s.get(ctx, "id = ?", id.String())
}

func (s *InferenceStore) GetByDedupeKey(ctx context.Context, key string) (*domain.Inference, error) {
	return s.get(ctx, "dedupe_key = ?", key)
}

func (s *InferenceStore) GetByDedupeKeys(ctx context.Context, keys []string) ([]domain.Inference, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inferenceColumns+` FROM inferences WHERE dedupe_key IN (`+placeholders(len(keys))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query inferences by dedupe keys: %w", err)
	}
	return collectInferences(rows)
}

func (s *InferenceStore) List(ctx context.Context, f domain.InferenceFilter) ([]domain.Inference, error) {
	now := f.Now
	if now.IsZero() {
		now = s.now()
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var conditions []string
	var args []any

	if f.SubjectID != nil {
		conditions = append(conditions, "subject_id = ?")
		args = append(args, f.SubjectID.String())
	}
	if f.FactType != "" {
		conditions = append(conditions, "fact_type = ?")
		args = append(args, f.FactType)
	}

	switch {
	case f.Status != nil && *f.Status == domain.InferenceStatusExpired:
		conditions = append(conditions, "status = 'pending'", "expires_at IS NOT NULL AND expires_at <= ?")
		args = append(args, toMillis(now))
	default:
		if f.Status != nil {
			conditions = append(conditions, "status = ?")
			args = append(args, string(*f.Status))
		}
		if !f.IncludeExpired {
			conditions = append(conditions, "(expires_at IS NULL OR expires_at > ?)")
			args = append(args, toMillis(now))
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inferenceColumns+` FROM inferences `+where+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list inferences: %w", err)
	}
	return collectInferences(rows)
}

func (s *InferenceStore) Transition(ctx context.Context, id uuid.UUID, to domain.InferenceStatus) (*domain.Inference, error) {
	if !domain.InferenceStatusPending.CanTransition(to) {
		return nil, store.ErrInvalidTransition
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE inferences SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		string(to), toMillis(s.now()), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("transition inference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition inference: %w", err)
	}

	inf, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, store.ErrInvalidTransition
	}
	return inf, nil
}

func (s *InferenceStore) MarkPrompted(ctx context.Context, keys []string, at time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	args := []any{toMillis(at), toMillis(at)}
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE inferences SET last_prompted_at = ?, updated_at = ? WHERE dedupe_key IN (`+placeholders(len(keys))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark inferences prompted: %w", err)
	}
	return nil
}

func (s *InferenceStore) RejectPending(ctx context.Context, subjectID uuid.UUID, factType string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inferences SET status = 'rejected', updated_at = ?
		 WHERE subject_id = ? AND fact_type = ? AND status = 'pending'`,
		toMillis(s.now()), subjectID.String(), factType,
	)
	if err != nil {
		return 0, fmt.Errorf("reject pending inferences: %w", err)
	}
	return res.RowsAffected()
}

func collectInferences(rows *sql.Rows) ([]domain.Inference, error) {
	defer rows.Close()

	var results []domain.Inference
	for rows.Next() {
		inf, err := scanInference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inference row: %w", err)
		}
		results = append(results, *inf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inference rows: %w", err)
	}
	return results, nil
}
