package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// testClock advances one second per reading so updated_at ordering is strict.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memInferenceStore struct {
	mu    sync.Mutex
	now   func() time.Time
	rows  map[uuid.UUID]*domain.Inference
	byKey map[string]uuid.UUID
}

func newMemInferenceStore(now func() time.Time) *memInferenceStore {
	return &memInferenceStore{now: now, rows: map[uuid.UUID]*domain.Inference{}, byKey: map[string]uuid.UUID{}}
}

func cloneInference(inf *domain.Inference) *domain.Inference {
	out := *inf
	out.Payload = copyPayload(inf.Payload)
	return &out
}

func (m *memInferenceStore) Create(_ context.Context, inf *domain.Inference) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[inf.DedupeKey]; ok {
		*inf = *cloneInference(m.rows[id])
		return false, nil
	}
	now := m.now()
	inf.ID = uuid.New()
	inf.CreatedAt, inf.UpdatedAt = now, now
	if inf.Status == "" {
		inf.Status = domain.InferenceStatusPending
	}
	m.rows[inf.ID] = cloneInference(inf)
	m.byKey[inf.DedupeKey] = inf.ID
	return true, nil
}

func (m *memInferenceStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Inference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inf, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneInference(inf), nil
}

func (m *memInferenceStore) GetByDedupeKey(ctx context.Context, key string) (*domain.Inference, error) {
	m.mu.Lock()
	id, ok := m.byKey[key]
	m.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memInferenceStore) GetByDedupeKeys(ctx context.Context, keys []string) ([]domain.Inference, error) {
	var out []domain.Inference
	for _, k := range keys {
		inf, err := m.GetByDedupeKey(ctx, k)
		if err == nil {
			out = append(out, *inf)
		}
	}
	return out, nil
}

func (m *memInferenceStore) List(_ context.Context, f domain.InferenceFilter) ([]domain.Inference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Inference
	for _, inf := range m.rows {
		if f.SubjectID != nil && (inf.SubjectID == nil || *inf.SubjectID != *f.SubjectID) {
			continue
		}
		if f.FactType != "" && inf.FactType != f.FactType {
			continue
		}
		view := inf.ViewStatus(f.Now)
		if f.Status != nil {
			if *f.Status == domain.InferenceStatusExpired {
				if view != domain.InferenceStatusExpired {
					continue
				}
			} else if inf.Status != *f.Status || (!f.IncludeExpired && inf.Expired(f.Now)) {
				continue
			}
		} else if !f.IncludeExpired && inf.Expired(f.Now) {
			continue
		}
		out = append(out, *cloneInference(inf))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memInferenceStore) Transition(_ context.Context, id uuid.UUID, to domain.InferenceStatus) (*domain.Inference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inf, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !inf.Status.CanTransition(to) {
		return nil, store.ErrInvalidTransition
	}
	inf.Status = to
	inf.UpdatedAt = m.now()
	return cloneInference(inf), nil
}

func (m *memInferenceStore) MarkPrompted(_ context.Context, keys []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if id, ok := m.byKey[k]; ok {
			t := at
			m.rows[id].LastPromptedAt = &t
		}
	}
	return nil
}

func (m *memInferenceStore) RejectPending(_ context.Context, subjectID uuid.UUID, factType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, inf := range m.rows {
		if inf.SubjectID != nil && *inf.SubjectID == subjectID && inf.FactType == factType && inf.Status == domain.InferenceStatusPending {
			inf.Status = domain.InferenceStatusRejected
			n++
		}
	}
	return n, nil
}

type memKnowledgeStore struct {
	mu   sync.Mutex
	now  func() time.Time
	rows map[uuid.UUID]*domain.KnowledgeItem
}

func newMemKnowledgeStore(now func() time.Time) *memKnowledgeStore {
	return &memKnowledgeStore{now: now, rows: map[uuid.UUID]*domain.KnowledgeItem{}}
}

func cloneKnowledge(k *domain.KnowledgeItem) *domain.KnowledgeItem {
	out := *k
	out.Payload = copyPayload(k.Payload)
	return &out
}

func (m *memKnowledgeStore) insert(k *domain.KnowledgeItem) {
	now := m.now()
	k.ID = uuid.New()
	k.CreatedAt, k.UpdatedAt = now, now
	if k.Status == domain.KnowledgeStatusActive {
		k.ActivatedAt = &now
	}
	if k.Payload == nil {
		k.Payload = map[string]any{}
	}
	m.rows[k.ID] = cloneKnowledge(k)
}

func (m *memKnowledgeStore) Create(_ context.Context, k *domain.KnowledgeItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(k)
	return nil
}

func (m *memKnowledgeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneKnowledge(k), nil
}

func (m *memKnowledgeStore) FindLatest(_ context.Context, subjectID uuid.UUID, key string) (*domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.KnowledgeItem
	for _, k := range m.rows {
		if k.SubjectID == subjectID && k.Key == key && (latest == nil || k.UpdatedAt.After(latest.UpdatedAt)) {
			latest = k
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return cloneKnowledge(latest), nil
}

func (m *memKnowledgeStore) List(_ context.Context, f domain.KnowledgeFilter) ([]domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.KnowledgeItem
	for _, k := range m.rows {
		if k.SubjectID != f.SubjectID || (f.Key != "" && k.Key != f.Key) || (f.Status != nil && k.Status != *f.Status) {
			continue
		}
		out = append(out, *cloneKnowledge(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memKnowledgeStore) mutate(id uuid.UUID, fn func(k *domain.KnowledgeItem)) (*domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	wasActive := k.Status == domain.KnowledgeStatusActive
	fn(k)
	k.UpdatedAt = m.now()
	if k.Status == domain.KnowledgeStatusActive && !wasActive {
		t := k.UpdatedAt
		k.ActivatedAt = &t
	}
	return cloneKnowledge(k), nil
}

func (m *memKnowledgeStore) UpdatePayload(_ context.Context, id uuid.UUID, payload map[string]any, status *domain.KnowledgeStatus) (*domain.KnowledgeItem, error) {
	return m.mutate(id, func(k *domain.KnowledgeItem) {
		k.Payload = copyPayload(payload)
		if status != nil {
			k.Status = *status
		}
	})
}

func (m *memKnowledgeStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.KnowledgeStatus) (*domain.KnowledgeItem, error) {
	return m.mutate(id, func(k *domain.KnowledgeItem) { k.Status = status })
}

func (m *memKnowledgeStore) Activate(_ context.Context, id uuid.UUID, payload map[string]any, confidence string, qualifier *string) (*domain.KnowledgeItem, error) {
	return m.mutate(id, func(k *domain.KnowledgeItem) {
		k.Status = domain.KnowledgeStatusActive
		k.Payload = copyPayload(payload)
		k.Confidence = confidence
		k.Qualifier = qualifier
	})
}

func (m *memKnowledgeStore) SetExplicit(_ context.Context, subjectID uuid.UUID, key string, payload map[string]any) (*domain.KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.rows {
		if k.SubjectID == subjectID && k.Key == key && k.Type == domain.KnowledgeTypeExplicit && k.Status == domain.KnowledgeStatusActive {
			k.Payload = copyPayload(payload)
			k.UpdatedAt = m.now()
			return cloneKnowledge(k), nil
		}
	}
	for _, k := range m.rows {
		if k.SubjectID == subjectID && k.Key == key && k.Type == domain.KnowledgeTypeInferred && k.Status.Live() {
			k.Status = domain.KnowledgeStatusRejected
			k.UpdatedAt = m.now()
		}
	}
	item := &domain.KnowledgeItem{
		SubjectID: subjectID, Key: key, Type: domain.KnowledgeTypeExplicit,
		Status: domain.KnowledgeStatusActive, Payload: copyPayload(payload),
	}
	m.insert(item)
	return cloneKnowledge(item), nil
}

func (m *memKnowledgeStore) MarkPrompted(_ context.Context, ids []uuid.UUID, sessionID *uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if k, ok := m.rows[id]; ok {
			t := at
			k.LastPromptedAt = &t
			k.LastPromptedSession = sessionID
		}
	}
	return nil
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, text string, events []domain.Event) ([]domain.Candidate, error) {
	args := m.Called(ctx, text, events)
	candidates, _ := args.Get(0).([]domain.Candidate)
	return candidates, args.Error(1)
}
