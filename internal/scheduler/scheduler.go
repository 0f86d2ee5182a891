// Package scheduler triggers the daily price check.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/tracking"
)

// Runner starts one price check run.
type Runner interface {
	Run(ctx context.Context, trigger model.RunTrigger) (*model.CheckRun, error)
}

// Config holds the scheduler configuration
type Config struct {
	// Hour is the local hour (0-23) at which the daily check starts.
	Hour int
	// Timeout is the maximum duration for a complete check run, on top of
	// the orchestrator's own run timeout.
	Timeout time.Duration
	// Enabled determines if the scheduler should run
	Enabled  bool
	Location *time.Location
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Hour:     6,
		Timeout:  time.Hour,
		Enabled:  true,
		Location: time.Local,
	}
}

// Spec returns the cron expression, with seconds, for the configured hour.
func (c Config) Spec() string {
	return fmt.Sprintf("0 0 %d * * *", c.Hour)
}

// Scheduler manages the scheduled price check job
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	config  Config
	logger  *slog.Logger
	entryID cron.EntryID
}

// New creates a new Scheduler instance
func New(cfg Config, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(cfg.Location)),
		runner: runner,
		config: cfg,
		logger: logger,
	}
}

// Start begins the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled, skipping start")
		return nil
	}
	if s.config.Hour < 0 || s.config.Hour > 23 {
		return fmt.Errorf("invalid price check hour: %d", s.config.Hour)
	}

	entryID, err := s.cron.AddFunc(s.config.Spec(), func() {
		s.runCheck(model.TriggerScheduled)
	})
	if err != nil {
		return err
	}

	s.entryID = entryID
	s.cron.Start()

	s.logger.Info("Scheduler started",
		slog.String("schedule", s.config.Spec()),
		slog.Time("next_run", s.GetNextRunTime()),
		slog.Duration("timeout", s.config.Timeout),
	)

	return nil
}

// Stop gracefully stops the scheduler. The returned context is done once a
// running job has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler...")
	return s.cron.Stop()
}

// RunNow triggers an immediate check in the background.
func (s *Scheduler) RunNow() {
	go s.runCheck(model.TriggerManual)
}

func (s *Scheduler) runCheck(trigger model.RunTrigger) {
	ctx := context.Background()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	s.logger.Info("Starting price check job",
		slog.String("trigger", string(trigger)),
		slog.Time("start_time", startTime),
	)

	run, err := s.runner.Run(ctx, trigger)
	duration := time.Since(startTime)

	if errors.Is(err, tracking.ErrRunInProgress) {
		s.logger.Warn("Price check already running, skipping", slog.String("trigger", string(trigger)))
		return
	}
	if err != nil {
		s.logger.Error("Price check job failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		return
	}

	s.logger.Info("Price check job finished",
		slog.String("run_id", run.ID.String()),
		slog.String("state", string(run.State)),
		slog.Int("ok", run.OK),
		slog.Int("failed", run.Failed),
		slog.Int("skipped", run.Skipped),
		slog.Duration("duration", duration),
	)
}

// GetNextRunTime returns the next scheduled run time
func (s *Scheduler) GetNextRunTime() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRunTime returns the last run time
func (s *Scheduler) GetLastRunTime() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
