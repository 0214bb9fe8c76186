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

const defaultListLimit = 50

const inferenceColumns = `id, subject_id, actor_id, fact_type, payload, confidence, status, source, dedupe_key,
	created_at, updated_at, expires_at, last_prompted_at`

type InferenceStore struct {
	db dbtx
}

func NewInferenceStore(db *pgxpool.Pool) *InferenceStore {
	return &InferenceStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInference(row rowScanner) (*domain.Inference, error) {
	inf := &domain.Inference{}
	err := row.Scan(
		&inf.ID, &inf.SubjectID, &inf.ActorID, &inf.FactType, &inf.Payload, &inf.Confidence,
		&inf.Status, &inf.Source, &inf.DedupeKey, &inf.CreatedAt, &inf.UpdatedAt,
		&inf.ExpiresAt, &inf.LastPromptedAt,
	)
	if err != nil {
		return nil, err
	}
	if inf.Payload == nil {
		inf.Payload = map[string]any{}
	}
	return inf, nil
}

func (s *InferenceStore) Create(ctx context.Context, inf *domain.Inference) (bool, error) {
	if inf.Status == "" {
		inf.Status = domain.InferenceStatusPending
	}
	if inf.Payload == nil {
		inf.Payload = map[string]any{}
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO inferences (subject_id, actor_id, fact_type, payload, confidence, status, source, dedupe_key, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (dedupe_key) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		inf.SubjectID, inf.ActorID, inf.FactType, inf.Payload, inf.Confidence, inf.Status, inf.Source, inf.DedupeKey, inf.ExpiresAt,
	).Scan(&inf.ID, &inf.CreatedAt, &inf.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("insert inference: %w", err)
	}

	// Another writer owns this dedupe key; converge on its row.
	existing, err := s.GetByDedupeKey(ctx, inf.DedupeKey)
	if err != nil {
		return false, err
	}
	*inf = *existing
	return false, nil
}

func (s *InferenceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Inference, error) {
	inf, err := scanInference(s.db.QueryRow(ctx,
		`SELECT `+inferenceColumns+` FROM inferences WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inf, nil
}

func (s *InferenceStore) GetByDedupeKey(ctx context.Context, key string) (*domain.Inference, error) {
	inf, err := scanInference(s.db.QueryRow(ctx,
		`SELECT `+inferenceColumns+` FROM inferences WHERE dedupe_key = $1 LIMIT 1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inf, nil
}

func (s *InferenceStore) GetByDedupeKeys(ctx context.Context, keys []string) ([]domain.Inference, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+inferenceColumns+` FROM inferences WHERE dedupe_key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("query inferences by dedupe keys: %w", err)
	}
	return collectInferences(rows)
}

func (s *InferenceStore) List(ctx context.Context, f domain.InferenceFilter) ([]domain.Inference, error) {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var conditions []string
	var args []any

	if f.SubjectID != nil {
		args = append(args, *f.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if f.FactType != "" {
		args = append(args, f.FactType)
		conditions = append(conditions, fmt.Sprintf("fact_type = $%d", len(args)))
	}

	args = append(args, now)
	nowParam := len(args)

	switch {
	case f.Status != nil && *f.Status == domain.InferenceStatusExpired:
		conditions = append(conditions, "status = 'pending'",
			fmt.Sprintf("expires_at IS NOT NULL AND expires_at <= $%d", nowParam))
	default:
		if f.Status != nil {
			args = append(args, string(*f.Status))
			conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
		}
		if !f.IncludeExpired {
			conditions = append(conditions, fmt.Sprintf("(expires_at IS NULL OR expires_at > $%d)", nowParam))
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, limit)
	query := fmt.Sprintf(
		`SELECT %s FROM inferences %s ORDER BY created_at DESC LIMIT $%d`,
		inferenceColumns, where, len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inferences: %w", err)
	}
	return collectInferences(rows)
}

// Transition moves a pending inference to a terminal status. The status guard
// lives in the UPDATE so two racing resolutions cannot both succeed.
func (s *InferenceStore) Transition(ctx context.Context, id uuid.UUID, to domain.InferenceStatus) (*domain.Inference, error) {
	if !domain.InferenceStatusPending.CanTransition(to) {
		return nil, ErrInvalidTransition
	}

	inf, err := scanInference(s.db.QueryRow(ctx,
		`UPDATE inferences SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+inferenceColumns,
		id, to,
	))
	if err == nil {
		return inf, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition inference: %w", err)
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}

func (s *InferenceStore) MarkPrompted(ctx context.Context, keys []string, at time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE inferences SET last_prompted_at = $1, updated_at = $1 WHERE dedupe_key = ANY($2)`,
		at, keys,
	)
	return err
}

func (s *InferenceStore) RejectPending(ctx context.Context, subjectID uuid.UUID, factType string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE inferences SET status = 'rejected', updated_at = NOW()
		 WHERE subject_id = $1 AND fact_type = $2 AND status = 'pending'`,
		subjectID, factType,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectInferences(rows pgx.Rows) ([]domain.Inference, error) {
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
