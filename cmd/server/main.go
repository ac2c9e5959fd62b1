package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solapi/service/config"
	"github.com/brojonat/solapi/service/db"
	"github.com/brojonat/solapi/service/metrics"
	natspkg "github.com/brojonat/solapi/service/nats"
	"github.com/brojonat/solapi/service/server"
	"github.com/brojonat/solapi/service/solana"
	"github.com/brojonat/solapi/service/temporal"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	endpoint := solana.EndpointLabel(cfg.SolanaRPCURL)
	solanaClient := solana.NewClient(
		solana.NewRPCClient(cfg.SolanaRPCURL),
		endpoint,
		metricsCollector,
		logger,
		solana.WithCommitment(rpc.CommitmentType(cfg.Commitment)),
		solana.WithConfirmation(cfg.ConfirmTimeout, cfg.ConfirmPollInterval),
	)
	logger.Info("initialized solana RPC client", "endpoint", endpoint, "commitment", cfg.Commitment)

	// An unreachable node is not fatal: requests will fail with 502 until it recovers.
	versionCtx, versionCancel := context.WithTimeout(ctx, 5*time.Second)
	if version, err := solanaClient.Version(versionCtx); err != nil {
		logger.Warn("solana RPC node not reachable", "endpoint", endpoint, "error", err)
	} else {
		logger.Info("connected to solana RPC node", "endpoint", endpoint, "solana_core", version)
	}
	versionCancel()

	opts := []server.Option{
		server.WithGatherer(prometheus.DefaultGatherer),
		server.WithTrackTimeout(cfg.TrackTimeout),
		server.WithConfirmTimeout(cfg.ConfirmTimeout),
		server.WithExplorerCluster(cfg.ExplorerCluster),
	}

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
		opts = append(opts, server.WithStore(store))
		logger.Info("connected to database")
	}

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		subscriber, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer subscriber.Close()

		opts = append(opts, server.WithPublisher(publisher), server.WithSubscriber(subscriber))
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	if cfg.TrackingEnabled() {
		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()

		opts = append(opts, server.WithTracker(temporalClient))
		logger.Info("connected to temporal",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
			"task_queue", cfg.TemporalTaskQueue,
		)
	}

	httpServer := server.New(cfg.ServerAddr, solanaClient, metricsCollector, logger, opts...)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
