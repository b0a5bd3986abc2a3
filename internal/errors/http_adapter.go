package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter renders ConfgateErrors as JSON responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates an adapter writing structured error responses.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// errorResponse is the wire shape for error payloads.
type errorResponse struct {
	Error   string        `json:"error"`
	Kind    ErrorKind     `json:"kind"`
	Context ContextFields `json:"context,omitempty"`
}

// WriteErrorResponse writes err as a JSON error response with the status
// derived from its kind. Internal causes are logged, not leaked to clients.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ce := AsConfgate(err)
	status := ce.HTTPStatus()

	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("kind", string(ce.Kind)),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Any("error", err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   ce.Message,
		Kind:    ce.Kind,
		Context: ce.Context,
	})
}
