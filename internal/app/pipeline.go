// Package app assembles the price check pipeline from configuration. It is
// shared by the API server and the one-shot CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cheapfinder/backend/internal/alert"
	"github.com/cheapfinder/backend/internal/config"
	"github.com/cheapfinder/backend/internal/metrics"
	"github.com/cheapfinder/backend/internal/ratelimit"
	"github.com/cheapfinder/backend/internal/scraper"
	"github.com/cheapfinder/backend/internal/scraper/browser"
	"github.com/cheapfinder/backend/internal/scraper/retailers"
	"github.com/cheapfinder/backend/internal/tracking"
)

// Store is everything the pipeline persists. Both repository.Store and
// memstore.Store satisfy it.
type Store interface {
	tracking.Store
	alert.EvaluatorStore
	alert.DispatchStore
}

// Pipeline is a wired orchestrator together with the resources it owns.
type Pipeline struct {
	Orchestrator *tracking.Orchestrator
	Scrapers     *scraper.Registry
	Limits       *ratelimit.Registry
	Dispatcher   *alert.Dispatcher
	Metrics      *metrics.Pipeline

	browser *browser.Pool
	redis   *redis.Client
	logger  *slog.Logger
}

// NewPipeline builds the scrapers, limiter, alerting and orchestrator. Redis,
// the headless browser, email and Telegram are optional: a missing or broken
// one is logged and left out.
func NewPipeline(ctx context.Context, cfg *config.Config, store Store, reg prometheus.Registerer, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{logger: logger}

	p.Metrics = metrics.New(reg, metrics.Config{ServiceName: "cheapfinder", Environment: cfg.Env})

	limitCfg := ratelimit.DefaultConfig()
	limitCfg.Interval = cfg.RequestDelay
	p.Limits = ratelimit.NewRegistry(limitCfg)

	var renderer retailers.Renderer
	if cfg.BrowserEnabled {
		poolCfg := browser.DefaultPoolConfig()
		poolCfg.MaxPages = cfg.BrowserMaxPages
		pool, err := browser.NewPool(poolCfg, logger)
		if err != nil {
			logger.Warn("Headless browser unavailable, JS-rendered retailers will use static pages",
				slog.String("error", err.Error()),
			)
		} else {
			p.browser = pool
			renderer = pool
		}
	}

	p.Scrapers = retailers.NewRegistry(retailers.Options{
		Client:   &http.Client{Timeout: cfg.HTTPTimeout},
		Renderer: renderer,
		Gate:     p.Limits,
		Logger:   logger,
	})

	var lock tracking.RunLock
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("Redis unreachable, run lock limited to this process", slog.String("error", err.Error()))
			_ = client.Close()
		} else {
			p.redis = client
			lock = tracking.NewRedisRunLock(client, tracking.DefaultRunLockKey, cfg.RunTimeout+5*time.Minute, logger)
		}
	}

	p.Dispatcher = alert.NewDispatcher(store, emailSender(cfg, logger), telegramSender(cfg, logger), alert.DispatcherConfig{
		EmailTo:      cfg.AlertEmailTo,
		MaxAttempts:  cfg.DeliveryAttempts,
		RetailerName: func(id string) string { return p.Scrapers.Retailer(id).Name },
	}, p.Metrics, logger)

	evaluator := alert.NewEvaluator(store, alert.Policy{AlertOnTrackedSale: cfg.AlertOnTrackedSale}, p.Metrics, logger)

	orchCfg := tracking.DefaultConfig()
	orchCfg.MaxConcurrency = cfg.MaxConcurrency
	orchCfg.RunTimeout = cfg.RunTimeout
	orchCfg.Retry.Attempts = cfg.RetryBound
	orchCfg.Retry.MaxWait = cfg.TaskMaxWait

	p.Orchestrator = tracking.NewOrchestrator(tracking.Dependencies{
		Store:      store,
		Scrapers:   p.Scrapers,
		Limits:     p.Limits,
		Evaluator:  evaluator,
		Dispatcher: p.Dispatcher,
		Snapshots:  &scraper.SnapshotWriter{Dir: cfg.SnapshotDir, Enabled: cfg.SaveHTMLSnapshots},
		Metrics:    p.Metrics,
		Lock:       lock,
	}, orchCfg, logger)

	logger.Info("Price check pipeline ready",
		slog.Int("retailers", p.Scrapers.Len()),
		slog.Bool("browser", p.browser != nil),
		slog.Bool("redis_lock", lock != nil),
		slog.Bool("email", cfg.EmailEnabled()),
		slog.Bool("telegram", cfg.TelegramEnabled()),
	)
	return p, nil
}

// Close releases the browser and the Redis client.
func (p *Pipeline) Close() error {
	var errs []error
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
	}
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	return errors.Join(errs...)
}

func emailSender(cfg *config.Config, logger *slog.Logger) alert.EmailSender {
	if !cfg.EmailEnabled() {
		return nil
	}
	sender, err := alert.NewSMTPSender(alert.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		logger.Warn("Email alerts disabled", slog.String("error", err.Error()))
		return nil
	}
	return sender
}

func telegramSender(cfg *config.Config, logger *slog.Logger) alert.TelegramSender {
	if !cfg.TelegramEnabled() {
		return nil
	}
	notifier, err := alert.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		logger.Warn("Telegram alerts disabled", slog.String("error", err.Error()))
		return nil
	}
	return notifier
}
