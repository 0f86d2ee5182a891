package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cheapfinder/backend/internal/apperror"
	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/repository"
	"github.com/cheapfinder/backend/internal/scraper"
	"github.com/cheapfinder/backend/internal/tracking"
)

// CheckRunner runs price checks. Satisfied by *tracking.Orchestrator.
type CheckRunner interface {
	Run(ctx context.Context, trigger model.RunTrigger) (*model.CheckRun, error)
	Running() bool
	Health() *scraper.MetricsCollector
}

// RunHistory is the run persistence the price check service reads.
type RunHistory interface {
	LatestRun(ctx context.Context) (*model.CheckRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.CheckRun, error)
}

// PriceCheckService exposes manual runs, run history and pipeline health.
type PriceCheckService struct {
	runner   CheckRunner
	runs     RunHistory
	scrapers *scraper.Registry
	nextRun  func() time.Time
	logger   *slog.Logger
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPriceCheckService creates the service. nextRun reports the next
// scheduled run and may be nil when the scheduler is disabled.
func NewPriceCheckService(runner CheckRunner, runs RunHistory, scrapers *scraper.Registry, nextRun func() time.Time, logger *slog.Logger) *PriceCheckService {
	if logger == nil {
		logger = slog.Default()
	}
	if nextRun == nil {
		nextRun = func() time.Time { return time.Time{} }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PriceCheckService{
		runner:   runner,
		runs:     runs,
		scrapers: scrapers,
		nextRun:  nextRun,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Trigger starts a manual run in the background. It fails with a conflict
// when a run is already in progress.
func (s *PriceCheckService) Trigger(_ context.Context) error {
	if s.runner.Running() {
		return apperror.Conflict(tracking.ErrRunInProgress.Error())
	}
	if err := s.baseCtx.Err(); err != nil {
		return apperror.Unavailable("shutting down")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run, err := s.runner.Run(s.baseCtx, model.TriggerManual)
		if errors.Is(err, tracking.ErrRunInProgress) {
			s.logger.Warn("Manual price check skipped, run already in progress")
			return
		}
		if err != nil {
			s.logger.Error("Manual price check failed", slog.String("error", err.Error()))
			return
		}
		s.logger.Info("Manual price check finished",
			slog.String("run_id", run.ID.String()),
			slog.String("state", string(run.State)),
		)
	}()
	return nil
}

// RunSync runs a manual check and waits for it to finish.
func (s *PriceCheckService) RunSync(ctx context.Context) (*model.CheckRun, error) {
	run, err := s.runner.Run(ctx, model.TriggerManual)
	if errors.Is(err, tracking.ErrRunInProgress) {
		return nil, apperror.Conflict(err.Error())
	}
	return run, err
}

// Running reports whether a run is in progress.
func (s *PriceCheckService) Running() bool {
	return s.runner.Running()
}

// LatestRun returns the most recent run.
func (s *PriceCheckService) LatestRun(ctx context.Context) (*model.CheckRun, error) {
	run, err := s.runs.LatestRun(ctx)
	if errors.Is(err, repository.ErrRunNotFound) {
		return nil, apperror.NotFound("check run")
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	return run, nil
}

func (s *PriceCheckService) ListRuns(ctx context.Context, limit int) ([]model.CheckRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []model.CheckRun{}
	}
	return runs, nil
}

// GetHealth summarizes the outcome of the last run per retailer.
func (s *PriceCheckService) GetHealth() scraper.HealthStatus {
	return s.runner.Health().GetHealthStatus(s.nextRun(), s.scrapers.Len())
}

// GetRetailerMetrics returns the per-retailer counts of the last run.
func (s *PriceCheckService) GetRetailerMetrics() map[string]scraper.RetailerMetrics {
	return s.runner.Health().GetLastRunMetrics()
}

// ProbeRetailers runs every scraper's health check.
func (s *PriceCheckService) ProbeRetailers(ctx context.Context) map[string]bool {
	return s.scrapers.HealthCheckAll(ctx, 4, s.logger)
}

// Close cancels a background run started by Trigger and waits for it.
func (s *PriceCheckService) Close() {
	s.cancel()
	s.wg.Wait()
}
