package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is the production Tracker that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartTransferTracking starts TrackTransferWorkflow keyed by the transfer signature.
func (c *Client) StartTransferTracking(ctx context.Context, input TrackTransferInput) (string, error) {
	id := TrackWorkflowID(input.Signature)

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultTrackTimeout
	}

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		// Leave room for the final store update and publish after the deadline.
		WorkflowExecutionTimeout: timeout + 5*time.Minute,
		Memo: map[string]interface{}{
			"from_address": input.FromAddress,
			"to_address":   input.ToAddress,
			"created_by":   "solapi",
		},
	}, TrackTransferWorkflow, input)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start transfer tracking",
			"signature", input.Signature,
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "transfer tracking started",
		"signature", input.Signature,
		"workflow_id", id,
		"run_id", run.GetRunID(),
	)
	return run.GetRunID(), nil
}

// TrackingResult blocks until the tracking workflow for signature completes and
// returns its result.
func (c *Client) TrackingResult(ctx context.Context, signature string) (*TrackTransferResult, error) {
	id := TrackWorkflowID(signature)

	var result TrackTransferResult
	if err := c.client.GetWorkflow(ctx, id, "").Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to get workflow %q result: %w", id, err)
	}
	return &result, nil
}

// UpsertReconcileSchedule creates or updates the schedule that periodically runs
// ReconcileTransfersWorkflow.
func (c *Client) UpsertReconcileSchedule(ctx context.Context, interval time.Duration, batch int32) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ReconcileScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.DebugContext(ctx, "reconcile schedule not found, creating",
			"schedule_id", ReconcileScheduleID,
			"error", err,
		)
		_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: ReconcileScheduleID,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
			},
			Action: &client.ScheduleWorkflowAction{
				ID:        ReconcileScheduleID,
				Workflow:  ReconcileTransfersWorkflow,
				TaskQueue: c.taskQueue,
				Args:      []interface{}{batch},
			},
			Memo: map[string]interface{}{
				"created_by": "solapi",
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create schedule %q: %w", ReconcileScheduleID, err)
		}
		c.logger.InfoContext(ctx, "reconcile schedule created", "interval", interval)
		return nil
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule %q: %w", ReconcileScheduleID, err)
	}

	c.logger.InfoContext(ctx, "reconcile schedule updated", "interval", interval)
	return nil
}

// DeleteReconcileSchedule removes the reconcile schedule if it exists.
func (c *Client) DeleteReconcileSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ReconcileScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		return nil
	}
	if err := handle.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete schedule %q: %w", ReconcileScheduleID, err)
	}
	c.logger.InfoContext(ctx, "reconcile schedule deleted")
	return nil
}

// SDKClient returns the underlying Temporal SDK client.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
