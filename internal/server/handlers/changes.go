package handlers

import (
	"net/http"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/mutation"
	"git.home.luguber.info/inful/confgate/internal/review"
	"git.home.luguber.info/inful/confgate/internal/server/responses"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// ChangeHandlers covers the change request workflow.
type ChangeHandlers struct {
	adapter *cerrors.HTTPErrorAdapter
	changes *review.ChangeService
}

// NewChangeHandlers wires the change request endpoints.
func NewChangeHandlers(adapter *cerrors.HTTPErrorAdapter, changes *review.ChangeService) *ChangeHandlers {
	return &ChangeHandlers{adapter: adapter, changes: changes}
}

type createChangeRequest struct {
	Env         string `json:"env"`
	Domain      string `json:"domain"`
	Key         string `json:"key,omitempty"`
	Operation   string `json:"operation"`
	Content     string `json:"content,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Create opens a new change request with its draft branch.
func (h *ChangeHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	var req createChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	env, err := gitrepo.ParseEnv(req.Env)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	op, err := mutation.ParseOperation(req.Operation)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}

	cr, err := h.changes.Create(r.Context(), actor, review.ChangeInput{
		Env:         env,
		Domain:      req.Domain,
		Key:         req.Key,
		Operation:   op,
		Content:     req.Content,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cr)
}

// List returns change requests, filterable by status and env.
func (h *ChangeHandlers) List(w http.ResponseWriter, r *http.Request) {
	changes, err := h.changes.List(r.Context(),
		r.URL.Query().Get("status"), r.URL.Query().Get("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[*store.ChangeRequest]{
		Items: changes, Count: len(changes),
	})
}

// Get returns one change request.
func (h *ChangeHandlers) Get(w http.ResponseWriter, r *http.Request) {
	cr, err := h.changes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

type reviewRequest struct {
	Comment string `json:"comment,omitempty"`
}

// Submit moves a draft change into review.
func (h *ChangeHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, _ string) (*store.ChangeRequest, error) {
		return h.changes.Submit(r.Context(), actor, id)
	})
}

// Approve marks a submitted change approved.
func (h *ChangeHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, comment string) (*store.ChangeRequest, error) {
		return h.changes.Approve(r.Context(), actor, id, comment)
	})
}

// Reject marks a submitted change rejected and discards its draft.
func (h *ChangeHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, comment string) (*store.ChangeRequest, error) {
		return h.changes.Reject(r.Context(), actor, id, comment)
	})
}

// Merge lands an approved change on its environment branch.
func (h *ChangeHandlers) Merge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, _ string) (*store.ChangeRequest, error) {
		return h.changes.Merge(r.Context(), actor, id)
	})
}

// Discard abandons an open change.
func (h *ChangeHandlers) Discard(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor review.Actor, id, _ string) (*store.ChangeRequest, error) {
		return h.changes.Discard(r.Context(), actor, id)
	})
}

// transition runs one workflow action with the shared decode/respond shape.
// The body is optional for actions that take no comment.
func (h *ChangeHandlers) transition(w http.ResponseWriter, r *http.Request,
	fn func(actor review.Actor, id, comment string) (*store.ChangeRequest, error)) {
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
	cr, err := fn(actor, r.PathValue("id"), req.Comment)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}
