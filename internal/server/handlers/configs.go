package handlers

import (
	"net/http"
	"strings"

	"git.home.luguber.info/inful/confgate/internal/audit"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/mutation"
	"git.home.luguber.info/inful/confgate/internal/rollback"
	"git.home.luguber.info/inful/confgate/internal/server/responses"
	"git.home.luguber.info/inful/confgate/internal/snapshot"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// ConfigHandlers covers the read side plus single-file rollback and YAML
// validation.
type ConfigHandlers struct {
	adapter  *cerrors.HTTPErrorAdapter
	reader   *snapshot.Reader
	rollback *rollback.Engine
	recorder *audit.Recorder
}

// NewConfigHandlers wires the config endpoints.
func NewConfigHandlers(adapter *cerrors.HTTPErrorAdapter, reader *snapshot.Reader, rb *rollback.Engine, recorder *audit.Recorder) *ConfigHandlers {
	return &ConfigHandlers{adapter: adapter, reader: reader, rollback: rb, recorder: recorder}
}

// Environments lists the environments and their backing branches.
func (h *ConfigHandlers) Environments(w http.ResponseWriter, r *http.Request) {
	resp := responses.EnvironmentsResponse{}
	for _, env := range gitrepo.Environments() {
		resp.Environments = append(resp.Environments, responses.EnvironmentInfo{
			Name:   string(env),
			Branch: env.Branch(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Domains lists the domains of one environment.
func (h *ConfigHandlers) Domains(w http.ResponseWriter, r *http.Request) {
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	domains, err := h.reader.ListDomains(r.Context(), env)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[string]{Items: domains, Count: len(domains)})
}

// Keys lists the keys of one domain.
func (h *ConfigHandlers) Keys(w http.ResponseWriter, r *http.Request) {
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	keys, err := h.reader.ListKeys(r.Context(), env, r.PathValue("domain"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[string]{Items: keys, Count: len(keys)})
}

// Get returns the current value of one key.
func (h *ConfigHandlers) Get(w http.ResponseWriter, r *http.Request) {
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	cfg, err := h.reader.GetConfig(r.Context(), env, r.PathValue("domain"), r.PathValue("key"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// History returns the commit history of one key.
func (h *ConfigHandlers) History(w http.ResponseWriter, r *http.Request) {
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	history, err := h.reader.GetConfigHistory(r.Context(), env, r.PathValue("domain"), r.PathValue("key"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.ListResponse[snapshot.HistoryEntry]{
		Items: history, Count: len(history),
	})
}

// AtCommit returns the raw content of one key at a specific commit.
func (h *ConfigHandlers) AtCommit(w http.ResponseWriter, r *http.Request) {
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	raw, err := h.reader.GetConfigAtCommit(r.Context(), env,
		r.PathValue("domain"), r.PathValue("key"), r.PathValue("sha"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

type rollbackRequest struct {
	TargetCommit string `json:"target_commit"`
	Reason       string `json:"reason"`
}

// Rollback restores one key to its content at a previous commit.
func (h *ConfigHandlers) Rollback(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	if actor.Role == store.RoleViewer {
		h.adapter.WriteErrorResponse(w, r, cerrors.Forbidden("role viewer cannot roll back configs"))
		return
	}
	env, err := gitrepo.ParseEnv(r.PathValue("env"))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	var req rollbackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	if req.TargetCommit == "" || strings.TrimSpace(req.Reason) == "" {
		h.adapter.WriteErrorResponse(w, r,
			cerrors.InvalidInput("target_commit and reason are required"))
		return
	}

	domain, key := r.PathValue("domain"), r.PathValue("key")
	sha, err := h.rollback.RollbackFile(r.Context(), env, domain, key, req.TargetCommit, req.Reason)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		Actor: actor.Username, Action: audit.ConfigRollback,
		Env: string(env), Domain: domain, Key: key, CommitSha: sha, Detail: req.Reason,
	})
	writeJSON(w, http.StatusOK, responses.RollbackResponse{Status: "ok", Commit: sha})
}

type validateRequest struct {
	Content string `json:"content"`
}

// Validate checks a YAML document without touching the repository.
func (h *ConfigHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutation.ValidateContent(req.Content))
}
