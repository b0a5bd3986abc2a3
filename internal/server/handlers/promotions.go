package handlers

import (
	"net/http"
	"strings"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/promotion"
	"git.home.luguber.info/inful/confgate/internal/review"
	"git.home.luguber.info/inful/confgate/internal/server/responses"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// PromotionHandlers covers the promotion workflow.
type PromotionHandlers struct {
	adapter    *cerrors.HTTPErrorAdapter
	promotions *review.PromotionService
}

// NewPromotionHandlers wires the promotion endpoints.
func NewPromotionHandlers(adapter *cerrors.HTTPErrorAdapter, promotions *review.PromotionService) *PromotionHandlers {
	return &PromotionHandlers{adapter: adapter, promotions: promotions}
}

type createPromotionRequest struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Domain string   `json:"domain"`
	Files  []string `json:"files"`
}

// Create records a pending promotion request.
func (h *PromotionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	var req createPromotionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	source, err := gitrepo.ParseEnv(req.Source)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	target, err := gitrepo.ParseEnv(req.Target)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}

	pr, err := h.promotions.Create(r.Context(), actor, review.PromotionInput{
		Source: source,
		Target: target,
		Domain: req.Domain,
		Files:  req.Files,
	})
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// List returns promotion requests, filterable by status.
func (h *PromotionHandlers) List(w http.ResponseWriter, r *http.Request) {
	promotions, err := h.promotions.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[*store.PromotionRequest]{
		Items: promotions, Count: len(promotions),
	})
}

// Get returns one promotion request.
func (h *PromotionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	pr, err := h.promotions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// Preview renders the per-file diffs a promotion would apply.
func (h *PromotionHandlers) Preview(w http.ResponseWriter, r *http.Request) {
	diffs, err := h.promotions.Preview(r.Context(), r.PathValue("id"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[promotion.FileDiff]{
		Items: diffs, Count: len(diffs),
	})
}

// Approve marks a pending promotion approved.
func (h *PromotionHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, comment string) (*store.PromotionRequest, error) {
		return h.promotions.Approve(r.Context(), actor, id, comment)
	})
}

// Reject marks a pending promotion rejected.
func (h *PromotionHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, comment string) (*store.PromotionRequest, error) {
		return h.promotions.Reject(r.Context(), actor, id, comment)
	})
}

// Execute runs an approved promotion.
func (h *PromotionHandlers) Execute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, _ string) (*store.PromotionRequest, error) {
		return h.promotions.Execute(r.Context(), actor, id)
	})
}

type promotionRollbackRequest struct {
	Reason string `json:"reason"`
}

// Rollback restores the target environment to its pre-promotion state.
func (h *PromotionHandlers) Rollback(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	var req promotionRollbackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		h.adapter.WriteErrorResponse(w, r, cerrors.InvalidInput("reason is required"))
		return
	}
	pr, err := h.promotions.Rollback(r.Context(), actor, r.PathValue("id"), req.Reason)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (h *PromotionHandlers) transition(w http.ResponseWriter, r *http.Request,
	fn func(actor review.Actor, id, comment string) (*store.PromotionRequest, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	var req reviewRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.adapter.WriteErrorResponse(w, r, err)
			return
		}
	}
	pr, err := fn(actor, r.PathValue("id"), req.Comment)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}
