package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solapi/service/config"
	"github.com/brojonat/solapi/service/db"
	"github.com/brojonat/solapi/service/metrics"
	natspkg "github.com/brojonat/solapi/service/nats"
	"github.com/brojonat/solapi/service/solana"
	"github.com/brojonat/solapi/service/temporal"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	if !cfg.TrackingEnabled() {
		logger.Error("TEMPORAL_HOST is required to run the worker")
		os.Exit(1)
	}
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	endpoint := solana.EndpointLabel(cfg.SolanaRPCURL)
	solanaClient := solana.NewClient(
		solana.NewRPCClient(cfg.SolanaRPCURL),
		endpoint,
		metricsCollector,
		logger,
		solana.WithCommitment(rpc.CommitmentType(cfg.Commitment)),
	)
	logger.Info("initialized solana RPC client", "endpoint", endpoint)

	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		SolanaClient:      solanaClient,
		Metrics:           metricsCollector,
		Logger:            logger,
		TrackTimeout:      cfg.TrackTimeout,
	}

	// Assigned only when configured so the interfaces stay nil otherwise.
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store := db.NewStore(pool, metricsCollector)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		workerConfig.Store = store
		logger.Info("connected to database")
	}

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		workerConfig.Publisher = publisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	// Resuming pending transfers needs the audit log.
	scheduleCtx, scheduleCancel := context.WithTimeout(ctx, 30*time.Second)
	if cfg.ReconcileInterval > 0 && workerConfig.Store != nil {
		if err := worker.Client().UpsertReconcileSchedule(scheduleCtx, cfg.ReconcileInterval, temporal.DefaultResumeBatch); err != nil {
			logger.Error("failed to upsert reconcile schedule", "error", err)
		}
	} else if err := worker.Client().DeleteReconcileSchedule(scheduleCtx); err != nil {
		logger.Error("failed to delete reconcile schedule", "error", err)
	}
	scheduleCancel()

	logger.Info("temporal worker initialized, all dependencies ready",
		"store", workerConfig.Store != nil,
		"publisher", workerConfig.Publisher != nil,
		"reconcile_interval", cfg.ReconcileInterval,
	)

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
