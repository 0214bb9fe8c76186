package handlers

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type KnowledgeHandler struct {
	svc    *service.KnowledgeService
	logger *zap.Logger
}

func NewKnowledgeHandler(svc *service.KnowledgeService, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc, logger: logger}
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subjectID, err := uuid.Parse(q.Get("subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "subject_id is required")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := domain.KnowledgeFilter{SubjectID: subjectID, Key: q.Get("key"), Limit: limit}
	if raw := q.Get("status"); raw != "" {
		if !domain.ValidKnowledgeStatus(raw) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status := domain.KnowledgeStatus(raw)
		f.Status = &status
	}

	items, err := h.svc.ListKnowledge(r.Context(), f)
	if err != nil {
		h.logger.Error("list knowledge failed", zap.Error(err))
		writeServiceError(w, err, "failed to list knowledge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *KnowledgeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge id")
		return
	}
	item, err := h.svc.GetKnowledge(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get knowledge")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type setExplicitRequest struct {
	SubjectID string         `json:"subject_id"`
	Key       string         `json:"key"`
	Payload   map[string]any `json:"payload"`
}

// SetExplicit records a fact the user typed in settings. It always wins
// over inferred facts for the same key.
func (h *KnowledgeHandler) SetExplicit(w http.ResponseWriter, r *http.Request) {
	var req setExplicitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject_id")
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	item, err := h.svc.SetExplicit(r.Context(), subjectID, req.Key, req.Payload)
	if err != nil {
		h.logger.Error("set explicit failed", zap.String("key", req.Key), zap.Error(err))
		writeServiceError(w, err, "failed to set knowledge")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *KnowledgeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.ConfirmKnowledge)
}

func (h *KnowledgeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.RejectKnowledge)
}

func (h *KnowledgeHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.ArchiveKnowledge)
}

type reviewFunc func(ctx context.Context, id uuid.UUID) (*domain.KnowledgeItem, error)

func (h *KnowledgeHandler) review(w http.ResponseWriter, r *http.Request, apply reviewFunc) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge id")
		return
	}
	item, err := apply(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to update knowledge")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type editRequest struct {
	Payload map[string]any `json:"payload"`
}

func (h *KnowledgeHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge id")
		return
	}
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.EditKnowledge(r.Context(), id, req.Payload)
	if err != nil {
		writeServiceError(w, err, "failed to edit knowledge")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type selectPromptsRequest struct {
	SubjectID   string   `json:"subject_id"`
	AgeWeeks    *int     `json:"age_weeks,omitempty"`
	RelatedKeys []string `json:"related_keys,omitempty"`
	MaxPrompts  *int     `json:"max_prompts,omitempty"`
}

// SelectPrompts returns the pending items worth asking about now. Nothing is
// marked; callers follow up with MarkPrompts for what they actually show.
func (h *KnowledgeHandler) SelectPrompts(w http.ResponseWriter, r *http.Request) {
	var req selectPromptsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject_id")
		return
	}
	if req.MaxPrompts != nil && *req.MaxPrompts < 0 {
		writeError(w, http.StatusBadRequest, "max_prompts must not be negative")
		return
	}

	items, err := h.svc.SelectForPrompt(r.Context(), service.PromptRequest{
		SubjectID:   subjectID,
		AgeWeeks:    req.AgeWeeks,
		RelatedKeys: req.RelatedKeys,
		MaxPrompts:  req.MaxPrompts,
	})
	if err != nil {
		h.logger.Error("select prompts failed", zap.Error(err))
		writeServiceError(w, err, "failed to select prompts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type markPromptsRequest struct {
	ItemIDs   []uuid.UUID `json:"item_ids"`
	SessionID string      `json:"session_id,omitempty"`
}

func (h *KnowledgeHandler) MarkPrompts(w http.ResponseWriter, r *http.Request) {
	var req markPromptsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID, err := parseOptionalUUID(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	items, err := h.svc.MarkPromptedByID(r.Context(), req.ItemIDs, sessionID)
	if err != nil {
		writeServiceError(w, err, "failed to mark prompts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": len(items)})
}
