package handlers

import (
	"net/http"
	"strconv"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/server/responses"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// defaultAuditLimit caps audit listings when no limit is given.
const defaultAuditLimit = 50

// AuditHandlers covers audit log queries.
type AuditHandlers struct {
	adapter *cerrors.HTTPErrorAdapter
	store   *store.Store
}

// NewAuditHandlers wires the audit endpoints.
func NewAuditHandlers(adapter *cerrors.HTTPErrorAdapter, st *store.Store) *AuditHandlers {
	return &AuditHandlers{adapter: adapter, store: st}
}

// List returns recent audit entries, optionally filtered by actor.
func (h *AuditHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultAuditLimit)
	var entries []*store.AuditEntry
	var err error
	if actor := r.URL.Query().Get("actor"); actor != "" {
		entries, err = h.store.AuditByActor(r.Context(), actor, limit)
	} else {
		entries, err = h.store.ListRecentAudit(r.Context(), limit)
	}
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[*store.AuditEntry]{
		Items: entries, Count: len(entries),
	})
}

// ByUser returns recent audit entries for one actor.
func (h *AuditHandlers) ByUser(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.AuditByActor(r.Context(),
		r.PathValue("id"), parseLimit(r, defaultAuditLimit))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[*store.AuditEntry]{
		Items: entries, Count: len(entries),
	})
}

// ByConfig returns recent audit entries touching one key in one environment.
func (h *AuditHandlers) ByConfig(w http.ResponseWriter, r *http.Request) {
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	entries, err := h.store.AuditByConfig(r.Context(), string(env),
		r.PathValue("domain"), r.PathValue("key"), parseLimit(r, defaultAuditLimit))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[*store.AuditEntry]{
		Items: entries, Count: len(entries),
	})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 500 {
		return fallback
	}
	return limit
}
