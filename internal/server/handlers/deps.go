package handlers

import (
	"net/http"

	"git.home.luguber.info/inful/confgate/internal/deps"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/server/responses"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// DependencyHandlers covers the consumer dependency registry.
type DependencyHandlers struct {
	adapter  *cerrors.HTTPErrorAdapter
	registry *deps.Service
}

// NewDependencyHandlers wires the dependency endpoints.
func NewDependencyHandlers(adapter *cerrors.HTTPErrorAdapter, registry *deps.Service) *DependencyHandlers {
	return &DependencyHandlers{adapter: adapter, registry: registry}
}

// Register upserts one consumer dependency.
func (h *DependencyHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req deps.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := h.registry.Register(r.Context(), req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.MessageResponse{Status: "ok"})
}

// List returns every registered dependency.
func (h *DependencyHandlers) List(w http.ResponseWriter, r *http.Request) {
	dependencies, err := h.registry.List(r.Context())
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[*store.Dependency]{
		Items: dependencies, Count: len(dependencies),
	})
}

// Impact reports the consumers affected by changing one key.
func (h *DependencyHandlers) Impact(w http.ResponseWriter, r *http.Request) {
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	report, err := h.registry.Impact(r.Context(), env, r.PathValue("domain"), r.PathValue("key"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
