package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"github.com/Harshitk-cp/havi-knowledge/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrInferenceNotFound = errors.New("inference not found")
	ErrKnowledgeNotFound = errors.New("knowledge item not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidAction     = errors.New("invalid resolve action")
	ErrKeyRequired       = errors.New("knowledge key is required")
	ErrSubjectRequired   = errors.New("subject_id is required")
)

// qualifierSometimes marks a fact the user confirmed as only partly true.
const qualifierSometimes = "sometimes"

type KnowledgeConfig struct {
	PromptCooldown time.Duration
	MaxPrompts     int
}

func DefaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{PromptCooldown: DefaultPromptCooldown, MaxPrompts: DefaultMaxPrompts}
}

// TurnInput is one inbound caregiver message.
type TurnInput struct {
	Text      string         `json:"text"`
	Events    []domain.Event `json:"events,omitempty"`
	SubjectID *uuid.UUID     `json:"subject_id,omitempty"`
	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	AgeWeeks  *int           `json:"age_weeks,omitempty"`
}

type PromptRequest struct {
	SubjectID uuid.UUID
	AgeWeeks  *int
	// RelatedKeys are dedupe keys the current message is about.
	RelatedKeys []string
	// MaxPrompts overrides the configured cap when non-nil. Zero is unlimited.
	MaxPrompts *int
	Now        time.Time
}

type ResolveResult struct {
	Inference *domain.Inference     `json:"inference"`
	Knowledge *domain.KnowledgeItem `json:"knowledge,omitempty"`
}

type TurnPlan struct {
	Detected []domain.Inference     `json:"detected"`
	Prompts  []domain.KnowledgeItem `json:"prompts"`
}

// KnowledgeService is the entry point the turn handler and settings writers
// use. It owns both the inference and the knowledge tables.
type KnowledgeService struct {
	inferences domain.InferenceStore
	knowledge  domain.KnowledgeStore
	extractor  domain.Extractor
	resolver   *Resolver
	policy     *PolicyService
	merges     *MergeRegistry
	cfg        KnowledgeConfig
	tx         domain.Transactor
	now        func() time.Time
	logger     *zap.Logger

	tracer   trace.Tracer
	created  metric.Int64Counter
	resolved metric.Int64Counter
	prompted metric.Int64Counter
}

func NewKnowledgeService(
	inferences domain.InferenceStore,
	knowledge domain.KnowledgeStore,
	extractor domain.Extractor,
	policy *PolicyService,
	merges *MergeRegistry,
	cfg KnowledgeConfig,
	logger *zap.Logger,
) *KnowledgeService {
	if merges == nil {
		merges = DefaultMergeRegistry()
	}
	meter := telemetry.Meter()
	return &KnowledgeService{
		inferences: inferences,
		knowledge:  knowledge,
		extractor:  extractor,
		resolver:   NewResolver(inferences, policy, logger),
		policy:     policy,
		merges:     merges,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
		tracer:     telemetry.Tracer(),
		created:    counter(meter, "knowledge.inferences.created", "Inferences created from detections"),
		resolved:   counter(meter, "knowledge.inferences.resolved", "Inferences confirmed or rejected"),
		prompted:   counter(meter, "knowledge.items.prompted", "Knowledge items surfaced as prompts"),
	}
}

// UseTransactor makes writes that touch both stores share one transaction.
// Without one, each store call commits on its own.
func (s *KnowledgeService) UseTransactor(tx domain.Transactor) *KnowledgeService {
	s.tx = tx
	return s
}

func (s *KnowledgeService) inTx(ctx context.Context, fn func(domain.Stores) error) error {
	if s.tx == nil {
		return fn(domain.Stores{Inferences: s.inferences, Knowledge: s.knowledge})
	}
	return s.tx.InTx(ctx, fn)
}

// supersededByRejection reports whether a pending inferred item points back
// to an inference the user rejected. Such an item must not absorb new
// detections, or the rejected values would be prompted again.
func supersededByRejection(ctx context.Context, inferences domain.InferenceStore, item *domain.KnowledgeItem) (bool, error) {
	if item.Type != domain.KnowledgeTypeInferred || item.Status != domain.KnowledgeStatusPending {
		return false, nil
	}
	key := item.DedupeKey()
	if key == "" {
		return false, nil
	}
	inf, err := inferences.GetByDedupeKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load inference for knowledge: %w", err)
	}
	return inf.Status == domain.InferenceStatusRejected, nil
}

// retireIfRejected rejects a pending item whose inference was rejected and
// reports whether it did.
func retireIfRejected(ctx context.Context, st domain.Stores, item *domain.KnowledgeItem) (bool, error) {
	superseded, err := supersededByRejection(ctx, st.Inferences, item)
	if err != nil || !superseded {
		return false, err
	}
	if _, err := st.Knowledge.UpdateStatus(ctx, item.ID, domain.KnowledgeStatusRejected); err != nil {
		return false, mapKnowledgeErr(err)
	}
	return true, nil
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func mapInferenceErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrInferenceNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return ErrInvalidTransition
	}
	return err
}

func mapKnowledgeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrKnowledgeNotFound
	}
	return err
}

// DetectAndRegister runs the extractor over a message and registers every
// candidate. Newly created inferences also seed a pending knowledge item.
// Re-detections return the stored inference and write nothing.
func (s *KnowledgeService) DetectAndRegister(ctx context.Context, in TurnInput) (_ []domain.Inference, err error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.DetectAndRegister")
	defer func() { finishSpan(span, err) }()

	if strings.TrimSpace(in.Text) == "" && len(in.Events) == 0 {
		return []domain.Inference{}, nil
	}
	candidates, err := s.extractor.Extract(ctx, in.Text, in.Events)
	if err != nil {
		return nil, fmt.Errorf("extract candidates: %w", err)
	}
	span.SetAttributes(attribute.Int("knowledge.candidates", len(candidates)))

	results := make([]domain.Inference, 0, len(candidates))
	for _, c := range candidates {
		c.SubjectID = in.SubjectID
		c.ActorID = in.ActorID

		inf, created, err := s.resolver.ResolveOrCreate(ctx, c, in.AgeWeeks)
		if err != nil {
			return nil, err
		}
		if created {
			s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("fact_type", inf.FactType)))
			if inf.SubjectID != nil {
				if _, err := s.UpsertInferred(ctx, *inf.SubjectID, inf.FactType, inf.Payload, inf.DedupeKey); err != nil {
					return nil, err
				}
			}
		}
		results = append(results, *inf)
	}
	return results, nil
}

// UpsertInferred folds a detected payload into the live item for (subject, key)
// through the key's merger, or starts a new pending inferred item. Explicit
// items are returned untouched. A pending item whose inference was rejected
// is retired and replaced rather than merged into.
func (s *KnowledgeService) UpsertInferred(ctx context.Context, subjectID uuid.UUID, key string, payload map[string]any, dedupeKey string) (*domain.KnowledgeItem, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	var item *domain.KnowledgeItem
	err := s.inTx(ctx, func(st domain.Stores) error {
		var err error
		item, err = s.upsertInferred(ctx, st, subjectID, key, payload, dedupeKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *KnowledgeService) upsertInferred(ctx context.Context, st domain.Stores, subjectID uuid.UUID, key string, payload map[string]any, dedupeKey string) (*domain.KnowledgeItem, error) {
	latest, err := st.Knowledge.FindLatest(ctx, subjectID, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find knowledge: %w", err)
	}

	if latest != nil && latest.Status.Live() {
		if latest.Type == domain.KnowledgeTypeExplicit {
			s.logger.Debug("explicit knowledge shadows inferred upsert",
				zap.String("key", key), zap.String("id", latest.ID.String()))
			return latest, nil
		}
		retired, err := retireIfRejected(ctx, st, latest)
		if err != nil {
			return nil, err
		}
		if !retired {
			merged := s.merges.Merge(key, latest.Payload, payload)
			if dedupeKey != "" {
				merged[domain.PayloadDedupeKey] = dedupeKey
			} else if prev := latest.DedupeKey(); prev != "" {
				merged[domain.PayloadDedupeKey] = prev
			}
			updated, err := st.Knowledge.UpdatePayload(ctx, latest.ID, merged, nil)
			if err != nil {
				return nil, mapKnowledgeErr(err)
			}
			s.logger.Debug("merged inferred knowledge", zap.String("key", key), zap.String("id", updated.ID.String()))
			return updated, nil
		}
		s.logger.Info("retired knowledge behind rejected inference",
			zap.String("key", key), zap.String("id", latest.ID.String()))
	}

	fresh := copyPayload(payload)
	if dedupeKey != "" {
		fresh[domain.PayloadDedupeKey] = dedupeKey
	}
	item := &domain.KnowledgeItem{
		SubjectID: subjectID,
		Key:       key,
		Type:      domain.KnowledgeTypeInferred,
		Status:    domain.KnowledgeStatusPending,
		Payload:   fresh,
	}
	if err := st.Knowledge.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create knowledge: %w", err)
	}
	s.logger.Info("pending knowledge created", zap.String("key", key), zap.String("id", item.ID.String()))
	return item, nil
}

// ListPromptCandidates returns pending, unexpired inferences for a subject
// that clear the confidence bar of its age bracket.
func (s *KnowledgeService) ListPromptCandidates(ctx context.Context, subjectID uuid.UUID, ageWeeks *int) ([]domain.Inference, error) {
	pending := domain.InferenceStatusPending
	all, err := s.inferences.List(ctx, domain.InferenceFilter{
		SubjectID: &subjectID,
		Status:    &pending,
		Now:       s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("list inferences: %w", err)
	}

	minConfidence := s.policy.MinConfidence(ageWeeks)
	out := make([]domain.Inference, 0, len(all))
	for _, inf := range all {
		if inf.Confidence >= minConfidence {
			out = append(out, inf)
		}
	}
	return out, nil
}

func (s *KnowledgeService) ListPendingKnowledge(ctx context.Context, subjectID uuid.UUID) ([]domain.KnowledgeItem, error) {
	pending := domain.KnowledgeStatusPending
	items, err := s.knowledge.List(ctx, domain.KnowledgeFilter{SubjectID: subjectID, Status: &pending})
	if err != nil {
		return nil, fmt.Errorf("list pending knowledge: %w", err)
	}
	if items == nil {
		items = []domain.KnowledgeItem{}
	}
	return items, nil
}

// SelectForPrompt loads the subject's pending items and their inferences and
// applies the prompt filter. Nothing is written.
func (s *KnowledgeService) SelectForPrompt(ctx context.Context, req PromptRequest) (_ []domain.KnowledgeItem, err error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.SelectForPrompt",
		trace.WithAttributes(attribute.String("subject_id", req.SubjectID.String())))
	defer func() { finishSpan(span, err) }()

	items, err := s.ListPendingKnowledge(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(items))
	for _, item := range items {
		if k := item.DedupeKey(); k != "" {
			keys = append(keys, k)
		}
	}
	infs, err := s.inferences.GetByDedupeKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load inferences for prompts: %w", err)
	}

	now := req.Now
	if now.IsZero() {
		now = s.now()
	}
	related := make(map[string]bool, len(req.RelatedKeys))
	for _, k := range req.RelatedKeys {
		related[k] = true
	}
	signals := make(map[string]InferenceSignal, len(infs))
	for _, inf := range infs {
		signals[inf.DedupeKey] = InferenceSignal{
			Status:         inf.Status,
			Confidence:     inf.Confidence,
			LastPromptedAt: inf.LastPromptedAt,
			Expired:        inf.ViewStatus(now) == domain.InferenceStatusExpired,
			RelatedToTurn:  related[inf.DedupeKey],
		}
	}

	maxPrompts := s.cfg.MaxPrompts
	if req.MaxPrompts != nil {
		maxPrompts = *req.MaxPrompts
	}

	selected := SelectForPrompt(items, PromptOptions{
		Now:           now,
		Cooldown:      s.cfg.PromptCooldown,
		MaxPrompts:    maxPrompts,
		MinConfidence: s.policy.MinConfidence(req.AgeWeeks),
		Signals:       signals,
	})
	span.SetAttributes(attribute.Int("knowledge.pending", len(items)), attribute.Int("knowledge.selected", len(selected)))
	s.logger.Debug("prompt selection",
		zap.String("subject_id", req.SubjectID.String()),
		zap.Int("pending", len(items)),
		zap.Int("selected", len(selected)),
	)
	return selected, nil
}

// MarkPrompted stamps last_prompted_at on the items and on the inferences
// they point back to.
func (s *KnowledgeService) MarkPrompted(ctx context.Context, items []domain.KnowledgeItem, sessionID *uuid.UUID) error {
	if len(items) == 0 {
		return nil
	}
	at := s.now()
	ids := make([]uuid.UUID, 0, len(items))
	keys := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
		if k := item.DedupeKey(); k != "" {
			keys = append(keys, k)
		}
	}
	err := s.inTx(ctx, func(st domain.Stores) error {
		if err := st.Knowledge.MarkPrompted(ctx, ids, sessionID, at); err != nil {
			return fmt.Errorf("mark knowledge prompted: %w", err)
		}
		if err := st.Inferences.MarkPrompted(ctx, keys, at); err != nil {
			return fmt.Errorf("mark inferences prompted: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.prompted.Add(ctx, int64(len(items)))
	return nil
}

// MarkPromptedByID loads the items by id and marks them prompted.
func (s *KnowledgeService) MarkPromptedByID(ctx context.Context, ids []uuid.UUID, sessionID *uuid.UUID) ([]domain.KnowledgeItem, error) {
	items := make([]domain.KnowledgeItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.knowledge.GetByID(ctx, id)
		if err != nil {
			return nil, mapKnowledgeErr(err)
		}
		items = append(items, *item)
	}
	if err := s.MarkPrompted(ctx, items, sessionID); err != nil {
		return nil, err
	}
	return items, nil
}

// Resolve applies a user's answer to an inference. Confirmations activate a
// knowledge item carrying the inference payload; rejection only touches the
// inference.
func (s *KnowledgeService) Resolve(ctx context.Context, inferenceID uuid.UUID, action domain.ResolveAction) (_ *ResolveResult, err error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.Resolve", trace.WithAttributes(
		attribute.String("inference_id", inferenceID.String()),
		attribute.String("action", string(action)),
	))
	defer func() { finishSpan(span, err) }()

	if !domain.ValidResolveAction(string(action)) {
		return nil, ErrInvalidAction
	}
	inf, err := s.inferences.GetByID(ctx, inferenceID)
	if err != nil {
		return nil, mapInferenceErr(err)
	}

	target := domain.InferenceStatusConfirmed
	if action == domain.ResolveReject {
		target = domain.InferenceStatusRejected
	}
	if !inf.Status.CanTransition(target) {
		return nil, ErrInvalidTransition
	}

	// The guarded transition runs first so a resolution that loses a race
	// writes no knowledge.
	var (
		updated *domain.Inference
		item    *domain.KnowledgeItem
	)
	err = s.inTx(ctx, func(st domain.Stores) error {
		var err error
		updated, err = st.Inferences.Transition(ctx, inf.ID, target)
		if err != nil {
			return mapInferenceErr(err)
		}
		if target != domain.InferenceStatusConfirmed || inf.SubjectID == nil {
			return nil
		}
		confidence, qualifier := domain.ConfidenceMedium, (*string)(nil)
		if action == domain.ResolveConfirmQualified {
			q := qualifierSometimes
			confidence, qualifier = domain.ConfidenceLow, &q
		}
		item, err = s.activateFromInference(ctx, st, inf, confidence, qualifier)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.resolved.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(action))))
	s.logger.Info("inference resolved",
		zap.String("id", inf.ID.String()),
		zap.String("fact_type", inf.FactType),
		zap.String("action", string(action)),
	)
	return &ResolveResult{Inference: updated, Knowledge: item}, nil
}

func (s *KnowledgeService) activateFromInference(ctx context.Context, st domain.Stores, inf *domain.Inference, confidence string, qualifier *string) (*domain.KnowledgeItem, error) {
	latest, err := st.Knowledge.FindLatest(ctx, *inf.SubjectID, inf.FactType)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find knowledge: %w", err)
	}

	withRefs := func(p map[string]any) map[string]any {
		p[domain.PayloadSourceInferenceID] = inf.ID.String()
		p[domain.PayloadDedupeKey] = inf.DedupeKey
		return p
	}

	if latest != nil && latest.Status.Live() {
		if latest.Type == domain.KnowledgeTypeExplicit {
			return latest, nil
		}
		retired, err := retireIfRejected(ctx, st, latest)
		if err != nil {
			return nil, err
		}
		if !retired {
			merged := withRefs(s.merges.Merge(inf.FactType, latest.Payload, inf.Payload))
			item, err := st.Knowledge.Activate(ctx, latest.ID, merged, confidence, qualifier)
			if err != nil {
				return nil, mapKnowledgeErr(err)
			}
			return item, nil
		}
	}

	item := &domain.KnowledgeItem{
		SubjectID:  *inf.SubjectID,
		Key:        inf.FactType,
		Type:       domain.KnowledgeTypeInferred,
		Status:     domain.KnowledgeStatusActive,
		Payload:    withRefs(copyPayload(inf.Payload)),
		Confidence: confidence,
		Qualifier:  qualifier,
	}
	if err := st.Knowledge.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create knowledge: %w", err)
	}
	return item, nil
}

// SetExplicit records a fact the user stated directly. It supersedes inferred
// items for the key and rejects pending inferences of the same fact type.
func (s *KnowledgeService) SetExplicit(ctx context.Context, subjectID uuid.UUID, key string, payload map[string]any) (_ *domain.KnowledgeItem, err error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.SetExplicit", trace.WithAttributes(attribute.String("key", key)))
	defer func() { finishSpan(span, err) }()

	if key == "" {
		return nil, ErrKeyRequired
	}
	if subjectID == uuid.Nil {
		return nil, ErrSubjectRequired
	}
	var (
		item     *domain.KnowledgeItem
		rejected int64
	)
	err = s.inTx(ctx, func(st domain.Stores) error {
		var err error
		item, err = st.Knowledge.SetExplicit(ctx, subjectID, key, payload)
		if err != nil {
			return fmt.Errorf("set explicit knowledge: %w", err)
		}
		rejected, err = st.Inferences.RejectPending(ctx, subjectID, key)
		if err != nil {
			return fmt.Errorf("reject pending inferences: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("explicit knowledge set",
		zap.String("id", item.ID.String()),
		zap.String("key", key),
		zap.Int64("inferences_rejected", rejected),
	)
	return item, nil
}

// PlanTurn detects facts in a message, picks the prompts to show and marks
// them. Facts detected in this message count as related to the turn.
func (s *KnowledgeService) PlanTurn(ctx context.Context, in TurnInput, sessionID *uuid.UUID) (*TurnPlan, error) {
	detected, err := s.DetectAndRegister(ctx, in)
	if err != nil {
		return nil, err
	}
	plan := &TurnPlan{Detected: detected, Prompts: []domain.KnowledgeItem{}}
	if in.SubjectID == nil {
		return plan, nil
	}

	related := make([]string, 0, len(detected))
	for _, inf := range detected {
		related = append(related, inf.DedupeKey)
	}
	prompts, err := s.SelectForPrompt(ctx, PromptRequest{
		SubjectID:   *in.SubjectID,
		AgeWeeks:    in.AgeWeeks,
		RelatedKeys: related,
	})
	if err != nil {
		return nil, err
	}
	if err := s.MarkPrompted(ctx, prompts, sessionID); err != nil {
		return nil, err
	}
	plan.Prompts = prompts
	return plan, nil
}

func (s *KnowledgeService) GetInference(ctx context.Context, id uuid.UUID) (*domain.Inference, error) {
	inf, err := s.inferences.GetByID(ctx, id)
	if err != nil {
		return nil, mapInferenceErr(err)
	}
	return inf, nil
}

func (s *KnowledgeService) ListInferences(ctx context.Context, f domain.InferenceFilter) ([]domain.Inference, error) {
	if f.Now.IsZero() {
		f.Now = s.now()
	}
	infs, err := s.inferences.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if infs == nil {
		infs = []domain.Inference{}
	}
	return infs, nil
}

func (s *KnowledgeService) GetKnowledge(ctx context.Context, id uuid.UUID) (*domain.KnowledgeItem, error) {
	item, err := s.knowledge.GetByID(ctx, id)
	if err != nil {
		return nil, mapKnowledgeErr(err)
	}
	return item, nil
}

func (s *KnowledgeService) ListKnowledge(ctx context.Context, f domain.KnowledgeFilter) ([]domain.KnowledgeItem, error) {
	items, err := s.knowledge.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.KnowledgeItem{}
	}
	return items, nil
}

// ConfirmKnowledge activates an item from the review screen and confirms the
// inference behind it, if that is still pending.
func (s *KnowledgeService) ConfirmKnowledge(ctx context.Context, id uuid.UUID) (*domain.KnowledgeItem, error) {
	return s.setKnowledgeStatus(ctx, id, domain.KnowledgeStatusActive, domain.InferenceStatusConfirmed)
}

// RejectKnowledge rejects an item and its pending inference so the fact is
// never prompted again.
func (s *KnowledgeService) RejectKnowledge(ctx context.Context, id uuid.UUID) (*domain.KnowledgeItem, error) {
	return s.setKnowledgeStatus(ctx, id, domain.KnowledgeStatusRejected, domain.InferenceStatusRejected)
}

func (s *KnowledgeService) ArchiveKnowledge(ctx context.Context, id uuid.UUID) (*domain.KnowledgeItem, error) {
	return s.setKnowledgeStatus(ctx, id, domain.KnowledgeStatusArchived, "")
}

func (s *KnowledgeService) setKnowledgeStatus(ctx context.Context, id uuid.UUID, status domain.KnowledgeStatus, inferenceTo domain.InferenceStatus) (*domain.KnowledgeItem, error) {
	var item *domain.KnowledgeItem
	err := s.inTx(ctx, func(st domain.Stores) error {
		var err error
		item, err = st.Knowledge.UpdateStatus(ctx, id, status)
		if err != nil {
			return mapKnowledgeErr(err)
		}
		if inferenceTo == "" {
			return nil
		}
		return syncInference(ctx, st.Inferences, item, inferenceTo)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("knowledge status changed", zap.String("id", id.String()), zap.String("status", string(status)))
	return item, nil
}

func syncInference(ctx context.Context, inferences domain.InferenceStore, item *domain.KnowledgeItem, to domain.InferenceStatus) error {
	key := item.DedupeKey()
	if key == "" {
		return nil
	}
	inf, err := inferences.GetByDedupeKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load inference for knowledge: %w", err)
	}
	if !inf.Status.CanTransition(to) {
		return nil
	}
	if _, err := inferences.Transition(ctx, inf.ID, to); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		return fmt.Errorf("transition inference: %w", err)
	}
	return nil
}

// EditKnowledge replaces an item's payload. Back-references are carried over
// when the edit omits them. An empty payload leaves the item unchanged.
func (s *KnowledgeService) EditKnowledge(ctx context.Context, id uuid.UUID, payload map[string]any) (*domain.KnowledgeItem, error) {
	current, err := s.knowledge.GetByID(ctx, id)
	if err != nil {
		return nil, mapKnowledgeErr(err)
	}
	if len(payload) == 0 {
		return current, nil
	}

	next := copyPayload(payload)
	for _, reserved := range []string{domain.PayloadDedupeKey, domain.PayloadSourceInferenceID} {
		if _, ok := next[reserved]; ok {
			continue
		}
		if v, ok := current.Payload[reserved]; ok {
			next[reserved] = v
		}
	}
	item, err := s.knowledge.UpdatePayload(ctx, id, next, nil)
	if err != nil {
		return nil, mapKnowledgeErr(err)
	}
	s.logger.Info("knowledge edited", zap.String("id", id.String()))
	return item, nil
}
