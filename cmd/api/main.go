package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cheapfinder/backend/internal/app"
	"github.com/cheapfinder/backend/internal/config"
	"github.com/cheapfinder/backend/internal/database"
	"github.com/cheapfinder/backend/internal/handler"
	"github.com/cheapfinder/backend/internal/logger"
	"github.com/cheapfinder/backend/internal/repository"
	"github.com/cheapfinder/backend/internal/scheduler"
	"github.com/cheapfinder/backend/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log := logger.New(cfg.Env, os.Stdout)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.RunMigrations(db.DB); err != nil {
		log.Error("Failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := repository.NewStore(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline, err := app.NewPipeline(ctx, cfg, store, registry, log)
	if err != nil {
		log.Error("Failed to build price check pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = pipeline.Close() }()

	// Daily price check
	sched := scheduler.New(scheduler.Config{
		Hour:     cfg.PriceCheckHour,
		Timeout:  cfg.RunTimeout + 15*time.Minute,
		Enabled:  cfg.SchedulerEnabled,
		Location: time.Local,
	}, pipeline.Orchestrator, log)
	if err := sched.Start(); err != nil {
		log.Error("Failed to start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize services
	priceCheckService := service.NewPriceCheckService(pipeline.Orchestrator, store, pipeline.Scrapers, sched.GetNextRunTime, log)
	catalogService := service.NewCatalogService(store, pipeline.Scrapers, log)
	priceService := service.NewPriceService(store)
	notificationService := service.NewNotificationService(store)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db)
	priceCheckHandler := handler.NewPriceCheckHandler(priceCheckService)
	catalogHandler := handler.NewCatalogHandler(catalogService, priceService)
	notificationHandler := handler.NewNotificationHandler(notificationService)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(handler.RequestLogging)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Check)
	r.Get("/api/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Price checks
	r.Post("/api/price-check/run", priceCheckHandler.Run)
	r.Get("/api/price-check/status", priceCheckHandler.Status)
	r.Get("/api/price-check/runs", priceCheckHandler.ListRuns)
	r.Get("/api/price-check/runs/latest", priceCheckHandler.LatestRun)
	r.Get("/api/price-check/health", priceCheckHandler.GetHealth)
	r.Get("/api/price-check/metrics", priceCheckHandler.GetRetailerMetrics)
	r.Post("/api/price-check/probe", priceCheckHandler.ProbeRetailers)

	// Catalog
	r.Get("/api/retailers", catalogHandler.ListRetailers)
	r.Get("/api/brands", catalogHandler.ListBrands)
	r.Post("/api/brands", catalogHandler.AddBrand)
	r.Get("/api/products", catalogHandler.ListProducts)
	r.Post("/api/products", catalogHandler.TrackProduct)
	r.Patch("/api/products/{id}/tracked", catalogHandler.SetTracked)
	r.Delete("/api/products/{id}", catalogHandler.Deactivate)
	r.Get("/api/products/{id}/history", catalogHandler.GetHistory)

	// Notifications
	r.Get("/api/notifications", notificationHandler.List)
	r.Get("/api/notifications/unread-count", notificationHandler.UnreadCount)
	r.Post("/api/notifications/read-all", notificationHandler.MarkAllRead)
	r.Post("/api/notifications/{id}/read", notificationHandler.MarkRead)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("error", err.Error()))
	}

	// A manual run in flight is cancelled and records what it finished.
	priceCheckService.Close()

	select {
	case <-sched.Stop().Done():
		log.Info("Scheduler stopped")
	case <-shutdownCtx.Done():
		log.Warn("Scheduled run still in progress at shutdown")
	}
}
