package temporal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solapi/service/metrics"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Store and Publisher are optional.
	Store        StoreInterface
	SolanaClient SolanaClientInterface
	Publisher    PublisherInterface
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	// TrackTimeout bounds tracking of transfers resumed by reconciliation.
	TrackTimeout time.Duration
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client *Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates a worker that runs the transfer tracking workflows.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.SolanaClient == nil {
		return nil, fmt.Errorf("solana client is required")
	}

	logger := config.Logger.With("component", "temporal_worker")

	c, err := NewClient(config.TemporalHost, config.TemporalNamespace, config.TaskQueue, logger)
	if err != nil {
		return nil, err
	}

	w := worker.New(c.SDKClient(), config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(TrackTransferWorkflow)
	w.RegisterWorkflow(ReconcileTransfersWorkflow)

	activities := NewActivities(
		config.Store,
		config.SolanaClient,
		config.Publisher,
		c,
		config.TrackTimeout,
		config.Metrics,
		logger,
	)
	w.RegisterActivity(activities.CheckSignatureStatus)
	w.RegisterActivity(activities.UpdateTransferStatus)
	w.RegisterActivity(activities.PublishTransferEvent)
	w.RegisterActivity(activities.ResumePendingTransfers)

	logger.Info("registered workflows and activities",
		"workflows", []string{"TrackTransferWorkflow", "ReconcileTransfersWorkflow"},
		"activities", []string{"CheckSignatureStatus", "UpdateTransferStatus", "PublishTransferEvent", "ResumePendingTransfers"},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Client returns the Temporal client the worker is connected with.
func (w *Worker) Client() *Client {
	return w.client
}

// Start begins processing workflows and activities.
// This method blocks until the process is interrupted or Stop is called.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Run(worker.InterruptCh()); err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
