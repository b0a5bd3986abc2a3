package handlers

import (
	"net/http"

	"git.home.luguber.info/inful/confgate/internal/audit"
	"git.home.luguber.info/inful/confgate/internal/auth"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/server/middleware"
	"git.home.luguber.info/inful/confgate/internal/server/responses"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// AuthHandlers covers login and logout.
type AuthHandlers struct {
	adapter  *cerrors.HTTPErrorAdapter
	auth     *auth.Service
	recorder *audit.Recorder
}

// NewAuthHandlers wires the auth endpoints.
func NewAuthHandlers(adapter *cerrors.HTTPErrorAdapter, svc *auth.Service, recorder *audit.Recorder) *AuthHandlers {
	return &AuthHandlers{adapter: adapter, auth: svc, recorder: recorder}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	token, identity, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		Actor: identity.Username, Action: audit.AuthLogin,
	})
	writeJSON(w, http.StatusOK, responses.LoginResponse{
		Token:    token,
		Username: identity.Username,
		Role:     identity.Role,
	})
}

// Logout records the logout. Tokens are stateless; the entry exists for the
// audit trail, not for revocation.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.adapter.WriteErrorResponse(w, r, cerrors.Unauthenticated("no identity on request"))
		return
	}
	h.recorder.Record(r.Context(), store.AuditEntry{
		Actor: identity.Username, Action: audit.AuthLogout,
	})
	writeJSON(w, http.StatusOK, responses.MessageResponse{Status: "ok"})
}
