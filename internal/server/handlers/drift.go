package handlers

import (
	"net/http"

	"git.home.luguber.info/inful/confgate/internal/drift"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
)

// DriftHandlers covers drift reports and per-key comparisons.
type DriftHandlers struct {
	adapter  *cerrors.HTTPErrorAdapter
	analyzer *drift.Analyzer
}

// NewDriftHandlers wires the drift endpoints.
func NewDriftHandlers(adapter *cerrors.HTTPErrorAdapter, analyzer *drift.Analyzer) *DriftHandlers {
	return &DriftHandlers{adapter: adapter, analyzer: analyzer}
}

// Report runs a full drift analysis.
func (h *DriftHandlers) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.analyzer.Analyze(r.Context())
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Compare returns the three-way content bundle for one key.
func (h *DriftHandlers) Compare(w http.ResponseWriter, r *http.Request) {
	cmp, err := h.analyzer.Compare(r.Context(), r.PathValue("domain"), r.PathValue("key"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// Diff renders the unified diff of one key between two environments, given as
// ?source= and ?target=.
func (h *DriftHandlers) Diff(w http.ResponseWriter, r *http.Request) {
	source, err := gitrepo.ParseEnv(r.URL.Query().Get("source"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	target, err := gitrepo.ParseEnv(r.URL.Query().Get("target"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	pd, err := h.analyzer.Diff(r.Context(), r.PathValue("domain"), r.PathValue("key"), source, target)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pd)
}
