// Package scheduler runs the periodic background jobs: the drift scan that
// feeds the gauges and the sweep flagging stale consumer registrations.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/confgate/internal/deps"
	"git.home.luguber.info/inful/confgate/internal/drift"
	"git.home.luguber.info/inful/confgate/internal/logfields"
	"git.home.luguber.info/inful/confgate/internal/metrics"
)

// Scheduler wraps gocron for the service's periodic jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	analyzer  *drift.Analyzer
	registry  *deps.Service
	rec       metrics.Recorder
}

// New creates a scheduler over the drift analyzer and dependency registry.
func New(analyzer *drift.Analyzer, registry *deps.Service, rec metrics.Recorder) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Scheduler{scheduler: s, analyzer: analyzer, registry: registry, rec: rec}, nil
}

// ScheduleDriftScan runs a full drift analysis every interval and publishes
// the results to the gauges.
func (s *Scheduler) ScheduleDriftScan(interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.runDriftScan),
		gocron.WithName("drift-scan"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule drift scan: %w", err)
	}
	return nil
}

// ScheduleStaleSweep flags consumer registrations not refreshed within maxAge,
// checking every interval.
func (s *Scheduler) ScheduleStaleSweep(interval, maxAge time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.runStaleSweep, maxAge),
		gocron.WithName("stale-consumer-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule stale sweep: %w", err)
	}
	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) runDriftScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := s.analyzer.Analyze(ctx)
	if err != nil {
		slog.Error("Scheduled drift scan failed", logfields.Error(err))
		return
	}
	s.rec.SetDriftedKeys(report.Drifted)
	s.rec.SetSyncedPercent(report.SyncedPercent)
	slog.Info("Drift scan completed",
		slog.Int("total", report.Total),
		slog.Int("drifted", report.Drifted),
		slog.Int("synced_percent", report.SyncedPercent))
}

func (s *Scheduler) runStaleSweep(maxAge time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	flagged, err := s.registry.MarkStale(ctx, maxAge)
	if err != nil {
		slog.Error("Stale consumer sweep failed", logfields.Error(err))
		return
	}
	if flagged > 0 {
		slog.Info("Flagged stale consumer registrations", slog.Int64("count", flagged))
	}
}
