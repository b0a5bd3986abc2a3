package handlers

import (
	"encoding/json"
	"net/http"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/review"
	"git.home.luguber.info/inful/confgate/internal/server/middleware"
)

// writeJSON renders v with the given status. Encoding failures after the
// header is written can only be logged by the caller's middleware.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cerrors.Wrap(err, cerrors.KindInvalidInput, "malformed request body")
	}
	return nil
}

// actorFrom converts the authenticated identity into a workflow actor.
// RequireAuth guarantees the identity is present on protected routes.
func actorFrom(r *http.Request) (review.Actor, error) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return review.Actor{}, cerrors.Unauthenticated("no identity on request")
	}
	return review.Actor{Username: identity.Username, Role: identity.Role}, nil
}
