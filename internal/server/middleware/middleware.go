// Package middleware provides HTTP middleware for logging, panic recovery,
// metrics, and bearer-token authentication for Confgate servers.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/confgate/internal/auth"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/logfields"
	"git.home.luguber.info/inful/confgate/internal/metrics"
)

// Chain returns a middleware wrapper applying logging, metrics, and panic
// recovery around a handler.
func Chain(logger *slog.Logger, adapter *cerrors.HTTPErrorAdapter, rec metrics.Recorder) func(http.Handler) http.Handler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return loggingMiddleware(logger, rec, panicRecoveryMiddleware(logger, adapter, next))
	}
}

// loggingMiddleware logs method, path, status, duration, user agent, and
// remote addr, and feeds the HTTP metrics.
func loggingMiddleware(logger *slog.Logger, rec metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		pattern := r.Pattern
		if pattern == "" {
			pattern = r.URL.Path
		}
		rec.IncHTTPRequest(r.Method, pattern, wrapped.statusCode)
		rec.ObserveHTTPDuration(pattern, duration)

		logger.Info("HTTP request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.HTTPStatus(wrapped.statusCode),
			logfields.DurationMS(float64(duration.Microseconds())/1000),
			logfields.UserAgent(r.UserAgent()),
			logfields.RemoteAddr(r.RemoteAddr))
	})
}

// panicRecoveryMiddleware recovers from panics and writes a structured error
// response via the HTTPErrorAdapter.
func panicRecoveryMiddleware(logger *slog.Logger, adapter *cerrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("HTTP handler panic",
					slog.Any("panic", rec),
					logfields.Path(r.URL.Path),
					logfields.Method(r.Method),
					logfields.RemoteAddr(r.RemoteAddr))
				adapter.WriteErrorResponse(w, r, cerrors.New(cerrors.KindInternal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type identityKey struct{}

// Verifier validates a bearer token into an identity.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// identity to the request context.
func RequireAuth(verifier Verifier, adapter *cerrors.HTTPErrorAdapter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				adapter.WriteErrorResponse(w, r, cerrors.Unauthenticated("missing bearer token"))
				return
			}
			identity, err := verifier.Verify(token)
			if err != nil {
				adapter.WriteErrorResponse(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), identityKey{}, identity)))
		})
	}
}

// IdentityFrom returns the authenticated identity attached by RequireAuth.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(auth.Identity)
	return identity, ok
}

// responseWriter captures status codes for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
