package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/sierge-ai/activity-engine/app/db"
	appLogger "github.com/sierge-ai/activity-engine/app/logger"
	"github.com/sierge-ai/activity-engine/app/observability/metrics"
	"github.com/sierge-ai/activity-engine/app/tracer"
	"github.com/sierge-ai/activity-engine/config"
	"github.com/sierge-ai/activity-engine/internal/api/activity"
	"github.com/sierge-ai/activity-engine/internal/api/embedding"
	"github.com/sierge-ai/activity-engine/internal/api/geocoding"
	"github.com/sierge-ai/activity-engine/internal/api/ingest"
	"github.com/sierge-ai/activity-engine/internal/router"
	"github.com/sierge-ai/activity-engine/internal/types"
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Observability ---
	tracer.InitTracingAndMetrics(cfg.Handlers.Prometheus.Port)
	metrics.InitAppMetrics()

	// --- Database Setup ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	// Run migrations before initializing the main pool
	err = database.RunMigrations(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Dependency Injection ---
	embedder, err := embedding.NewService(ctx, cfg.Embedding.Model, cfg.Embedding.Dimension, logger)
	if err != nil {
		logger.Error("Failed to initialize embedding service", slog.Any("error", err))
		os.Exit(1)
	}

	pipelineDefaults := types.PipelineContext{
		BaseLocation:    cfg.Pipeline.BaseLocation,
		BiasLat:         cfg.Pipeline.BiasLat,
		BiasLon:         cfg.Pipeline.BiasLon,
		SearchRadiusM:   cfg.Geocoding.BiasRadiusM,
		NumberOfResults: cfg.Pipeline.NumberOfResults,
	}

	geoClient := geocoding.NewGoogleClient(cfg.Geocoding.RegionCode, cfg.Geocoding.Timeout, logger)
	resolver := geocoding.NewResolver(geoClient, cfg.Geocoding.BiasRadiusM,
		cfg.Geocoding.CacheTTL, cfg.Geocoding.CacheCleanup, logger)
	contextService := geocoding.NewContextService(cfg.Geocoding.WeatherDays,
		cfg.Geocoding.FallbackTZ, cfg.Geocoding.Timeout, logger)
	contextHandler := geocoding.NewContextHandler(contextService,
		cfg.Pipeline.BiasLat, cfg.Pipeline.BiasLon, logger)

	activityRepo := activity.NewRepository(pool, logger)
	activityService := activity.NewService(activityRepo, embedder, logger)
	activityHandler := activity.NewHandlerImpl(activityService, pipelineDefaults, logger)

	ingestService := ingest.NewService(resolver, activityService, cfg.Geocoding.ResolveWorkers, logger)
	ingestHandler := ingest.NewHandlerImpl(ingestService, pipelineDefaults, logger)

	// --- Router Setup ---
	mainRouter := router.SetupRouter(&router.Config{
		ActivityHandler: activityHandler,
		IngestHandler:   ingestHandler,
		ContextHandler:  contextHandler,
	})

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Timeout(60 * time.Second))
	mux.Use(middleware.Compress(5, "application/json"))
	mux.Mount("/", mainRouter)

	// --- HTTP Server Setup ---
	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Application shut down complete.")
}

// setupLogger configures and returns the application logger.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
