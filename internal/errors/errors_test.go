package errors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind   ErrorKind
		status int
	}{
		{KindInvalidInput, http.StatusBadRequest},
		{KindStateConflict, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindGitFailure, http.StatusInternalServerError},
		{KindIOFailure, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, New(tc.kind, "x").HTTPStatus(), string(tc.kind))
	}
}

func TestForbiddenOverridesStatus(t *testing.T) {
	err := Forbidden("cannot approve own promotion")
	assert.Equal(t, KindStateConflict, err.Kind)
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus())
}

func TestWrappingAndKindOf(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := IOFailure(cause, "write config file")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindIOFailure, KindOf(err))
	assert.True(t, IsKind(err, KindIOFailure))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindIOFailure, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
}

func TestWriteErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/config/nope", nil)

	adapter.WriteErrorResponse(rec, req, NotFound("config not found").WithContext("key", "default"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"config not found","kind":"not_found","context":{"key":"default"}}`, rec.Body.String())
}
