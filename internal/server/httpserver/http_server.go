// Package httpserver wires the API and admin HTTP servers.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/confgate/internal/audit"
	"git.home.luguber.info/inful/confgate/internal/auth"
	"git.home.luguber.info/inful/confgate/internal/config"
	"git.home.luguber.info/inful/confgate/internal/deps"
	"git.home.luguber.info/inful/confgate/internal/drift"
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/metrics"
	"git.home.luguber.info/inful/confgate/internal/review"
	"git.home.luguber.info/inful/confgate/internal/rollback"
	"git.home.luguber.info/inful/confgate/internal/server/handlers"
	smw "git.home.luguber.info/inful/confgate/internal/server/middleware"
	"git.home.luguber.info/inful/confgate/internal/server/responses"
	"git.home.luguber.info/inful/confgate/internal/snapshot"
	"git.home.luguber.info/inful/confgate/internal/store"
	"git.home.luguber.info/inful/confgate/internal/version"
)

// Services bundles everything the HTTP layer serves.
type Services struct {
	Auth       *auth.Service
	Reader     *snapshot.Reader
	Changes    *review.ChangeService
	Promotions *review.PromotionService
	Rollback   *rollback.Engine
	Analyzer   *drift.Analyzer
	Registry   *deps.Service
	Store      *store.Store
	Audit      *audit.Recorder
	Metrics    metrics.Recorder
	PromReg    *prometheus.Registry
}

// Server manages the API and admin HTTP endpoints.
type Server struct {
	cfg          *config.Config
	svcs         Services
	errorAdapter *cerrors.HTTPErrorAdapter
	startTime    time.Time

	apiServer   *http.Server
	adminServer *http.Server

	mchain func(http.Handler) http.Handler
}

// New constructs the HTTP server wiring.
func New(cfg *config.Config, svcs Services) *Server {
	s := &Server{
		cfg:          cfg,
		svcs:         svcs,
		errorAdapter: cerrors.NewHTTPErrorAdapter(slog.Default()),
		startTime:    time.Now(),
	}
	s.mchain = smw.Chain(slog.Default(), s.errorAdapter, svcs.Metrics)
	return s
}

// Start pre-binds both ports so startup fails fast with an aggregate error
// instead of partial initialization, then serves.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "api", port: s.cfg.Server.APIPort},
		{name: "admin", port: s.cfg.Server.AdminPort},
	}
	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		addr := fmt.Sprintf(":%d", binds[i].port)
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.apiServer = &http.Server{
		Handler:           s.mchain(s.apiMux()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.adminServer = &http.Server{
		Handler:           s.mchain(s.adminMux()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.serve("api", s.apiServer, binds[0].ln)
	go s.serve("admin", s.adminServer, binds[1].ln)

	slog.Info("HTTP servers started",
		slog.Int("api_port", s.cfg.Server.APIPort),
		slog.Int("admin_port", s.cfg.Server.AdminPort))
	return nil
}

func (s *Server) serve(name string, srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server stopped", slog.String("server", name), slog.Any("error", err))
	}
}

// Stop gracefully shuts down both servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	for _, srv := range []*http.Server{s.apiServer, s.adminServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// apiMux builds the authenticated API surface. Login is the only open route.
func (s *Server) apiMux() *http.ServeMux {
	authH := handlers.NewAuthHandlers(s.errorAdapter, s.svcs.Auth, s.svcs.Audit)
	configH := handlers.NewConfigHandlers(s.errorAdapter, s.svcs.Reader, s.svcs.Rollback, s.svcs.Audit)
	changeH := handlers.NewChangeHandlers(s.errorAdapter, s.svcs.Changes)
	promoH := handlers.NewPromotionHandlers(s.errorAdapter, s.svcs.Promotions)
	driftH := handlers.NewDriftHandlers(s.errorAdapter, s.svcs.Analyzer)
	auditH := handlers.NewAuditHandlers(s.errorAdapter, s.svcs.Store)
	depsH := handlers.NewDependencyHandlers(s.errorAdapter, s.svcs.Registry)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", authH.Login)

	authed := smw.RequireAuth(s.svcs.Auth, s.errorAdapter)
	protect := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	protect("POST /auth/logout", authH.Logout)

	protect("GET /environments", configH.Environments)
	protect("GET /config/{env}", configH.Domains)
	protect("GET /config/{env}/{domain}", configH.Keys)
	protect("GET /config/{env}/{domain}/{key}", configH.Get)
	protect("GET /config/{env}/{domain}/{key}/history", configH.History)
	protect("GET /config/{env}/{domain}/{key}/at/{sha}", configH.AtCommit)
	protect("POST /config/{env}/{domain}/{key}/rollback", configH.Rollback)
	protect("POST /config/validate", configH.Validate)

	protect("POST /changes", changeH.Create)
	protect("GET /changes", changeH.List)
	protect("GET /changes/{id}", changeH.Get)
	protect("POST /changes/{id}/submit", changeH.Submit)
	protect("POST /changes/{id}/approve", changeH.Approve)
	protect("POST /changes/{id}/reject", changeH.Reject)
	protect("POST /changes/{id}/merge", changeH.Merge)
	protect("POST /changes/{id}/discard", changeH.Discard)

	protect("POST /promotions", promoH.Create)
	protect("GET /promotions", promoH.List)
	protect("GET /promotions/{id}", promoH.Get)
	protect("GET /promotions/{id}/preview", promoH.Preview)
	protect("POST /promotions/{id}/approve", promoH.Approve)
	protect("POST /promotions/{id}/reject", promoH.Reject)
	protect("POST /promotions/{id}/execute", promoH.Execute)
	protect("POST /promotions/{id}/rollback", promoH.Rollback)

	protect("GET /drift", driftH.Report)
	protect("GET /drift/{domain}/{key}", driftH.Compare)
	protect("GET /drift/{domain}/{key}/diff", driftH.Diff)

	protect("GET /audit", auditH.List)
	protect("GET /audit/user/{id}", auditH.ByUser)
	protect("GET /audit/config/{env}/{domain}/{key}", auditH.ByConfig)

	protect("POST /dependencies", depsH.Register)
	protect("GET /dependencies", depsH.List)
	protect("GET /impact/{env}/{domain}/{key}", depsH.Impact)

	return mux
}

// adminMux builds the unauthenticated operational surface.
func (s *Server) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.svcs.PromReg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.svcs.PromReg, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(responses.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(s.startTime).Seconds(),
	})
}
