package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/service"
	"go.uber.org/zap"
)

type InferenceHandler struct {
	svc    *service.KnowledgeService
	logger *zap.Logger
	now    func() time.Time
}

func NewInferenceHandler(svc *service.KnowledgeService, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{svc: svc, logger: logger, now: time.Now}
}

// inferenceView carries the status a caller should act on next to the
// stored one; a pending row past its expiry reads as expired.
type inferenceView struct {
	domain.Inference
	ViewStatus domain.InferenceStatus `json:"view_status"`
}

func (h *InferenceHandler) view(inf domain.Inference) inferenceView {
	return inferenceView{Inference: inf, ViewStatus: inf.ViewStatus(h.now())}
}

type turnRequest struct {
	service.TurnInput
	SessionID string `json:"session_id,omitempty"`
}

type turnResponse struct {
	Detected []inferenceView        `json:"detected"`
	Prompts  []domain.KnowledgeItem `json:"prompts"`
}

// Turn runs detection over one caregiver message and returns the prompts to
// show alongside the reply. Returned prompts are already marked.
func (h *InferenceHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID, err := parseOptionalUUID(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	plan, err := h.svc.PlanTurn(r.Context(), req.TurnInput, sessionID)
	if err != nil {
		h.logger.Error("turn failed", zap.Error(err))
		writeServiceError(w, err, "failed to process turn")
		return
	}

	resp := turnResponse{Detected: make([]inferenceView, 0, len(plan.Detected)), Prompts: plan.Prompts}
	for _, inf := range plan.Detected {
		resp.Detected = append(resp.Detected, h.view(inf))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subjectID, err := parseOptionalUUID(q.Get("subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject_id")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := domain.InferenceFilter{
		SubjectID: subjectID,
		FactType:  q.Get("fact_type"),
		Limit:     limit,
		Now:       h.now(),
	}
	if raw := q.Get("status"); raw != "" {
		if !domain.ValidInferenceStatus(raw) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status := domain.InferenceStatus(raw)
		f.Status = &status
	}
	if raw := q.Get("include_expired"); raw != "" {
		f.IncludeExpired, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid include_expired")
			return
		}
	}

	infs, err := h.svc.ListInferences(r.Context(), f)
	if err != nil {
		h.logger.Error("list inferences failed", zap.Error(err))
		writeServiceError(w, err, "failed to list inferences")
		return
	}
	views := make([]inferenceView, 0, len(infs))
	for _, inf := range infs {
		views = append(views, h.view(inf))
	}
	writeJSON(w, http.StatusOK, map[string]any{"inferences": views, "count": len(views)})
}

func (h *InferenceHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid inference id")
		return
	}
	inf, err := h.svc.GetInference(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get inference")
		return
	}
	writeJSON(w, http.StatusOK, h.view(*inf))
}

type resolveRequest struct {
	Action string `json:"action"`
}

type resolveResponse struct {
	Inference inferenceView         `json:"inference"`
	Knowledge *domain.KnowledgeItem `json:"knowledge,omitempty"`
}

func (h *InferenceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid inference id")
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Resolve(r.Context(), id, domain.ResolveAction(req.Action))
	if err != nil {
		writeServiceError(w, err, "failed to resolve inference")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Inference: h.view(*result.Inference), Knowledge: result.Knowledge})
}
