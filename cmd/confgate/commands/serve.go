package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/confgate/internal/audit"
	"git.home.luguber.info/inful/confgate/internal/auth"
	"git.home.luguber.info/inful/confgate/internal/config"
	"git.home.luguber.info/inful/confgate/internal/deps"
	"git.home.luguber.info/inful/confgate/internal/drift"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/logfields"
	"git.home.luguber.info/inful/confgate/internal/metrics"
	"git.home.luguber.info/inful/confgate/internal/mutation"
	"git.home.luguber.info/inful/confgate/internal/promotion"
	"git.home.luguber.info/inful/confgate/internal/review"
	"git.home.luguber.info/inful/confgate/internal/rollback"
	"git.home.luguber.info/inful/confgate/internal/scheduler"
	"git.home.luguber.info/inful/confgate/internal/server/httpserver"
	"git.home.luguber.info/inful/confgate/internal/snapshot"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct{}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg, root.Verbose, g.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	promReg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(promReg)

	gw := gitrepo.NewGateway(cfg.Repo.Path, rec)
	if err := gw.Init(ctx); err != nil {
		return fmt.Errorf("initialize configuration repository: %w", err)
	}

	st, err := store.New(cfg.Database.Path, rec)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close metadata store", logfields.Error(err))
		}
	}()

	reader := snapshot.NewReader(gw)
	recorder := audit.NewRecorder(st)
	rb := rollback.NewEngine(gw)
	analyzer := drift.NewAnalyzer(gw)
	registry := deps.NewService(st, reader)

	srv := httpserver.New(cfg, httpserver.Services{
		Auth:       auth.NewService(st, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL),
		Reader:     reader,
		Changes:    review.NewChangeService(st, mutation.NewEngine(gw), reader, recorder),
		Promotions: review.NewPromotionService(st, promotion.NewEngine(gw), rb, recorder),
		Rollback:   rb,
		Analyzer:   analyzer,
		Registry:   registry,
		Store:      st,
		Audit:      recorder,
		Metrics:    rec,
		PromReg:    promReg,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Jobs.Enabled {
		sched, err = scheduler.New(analyzer, registry, rec)
		if err != nil {
			return err
		}
		if err := sched.ScheduleDriftScan(cfg.Jobs.DriftScanInterval); err != nil {
			return err
		}
		if err := sched.ScheduleStaleSweep(time.Hour, cfg.Jobs.ConsumerStaleAfter); err != nil {
			return err
		}
		sched.Start()
	}

	// Watch the config file so the log level can change without a restart.
	go func() {
		if err := config.Watch(ctx, root.Config, func(next *config.Config) {
			g.LogLevel.Set(parseLevel(next.Logging.Level))
		}); err != nil {
			slog.Warn("Configuration watch unavailable", logfields.Error(err))
		}
	}()

	slog.Info("confgate started, waiting for shutdown signal")
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if sched != nil {
		if err := sched.Stop(); err != nil {
			slog.Warn("Scheduler shutdown failed", logfields.Error(err))
		}
	}
	if err := srv.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop http servers: %w", err)
	}
	slog.Info("confgate stopped")
	return nil
}
