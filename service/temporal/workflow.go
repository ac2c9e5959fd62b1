package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/solapi/service/db"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTrackTimeout = 3 * time.Minute

	// DefaultResumeBatch caps how many pending transfers one reconcile run re-tracks.
	DefaultResumeBatch = 100
)

var a *Activities // for type-safe activity invocation

// TrackTransferWorkflow follows a submitted transfer until the cluster finalizes
// it, reports it failed, or the tracking timeout passes.
//
// Every status change is written to the audit store and published on NATS. A
// transaction that is never seen before the timeout is recorded as failed,
// since its blockhash has expired by then. One that was seen but never
// finalized keeps its last status and the result is marked TimedOut.
func TrackTransferWorkflow(ctx workflow.Context, input TrackTransferInput) (*TrackTransferResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("TrackTransferWorkflow started", "signature", input.Signature)

	pollInterval := input.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultTrackTimeout
	}
	deadline := workflow.Now(ctx).Add(timeout)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	result := &TrackTransferResult{
		Signature: input.Signature,
		Status:    db.StatusSubmitted,
	}

	record := func(status string, slot uint64, errMsg *string, final bool) error {
		update := UpdateTransferStatusInput{
			Signature:   input.Signature,
			Status:      status,
			Error:       errMsg,
			Final:       final,
			SubmittedAt: input.SubmittedAt,
		}
		if err := workflow.ExecuteActivity(ctx, a.UpdateTransferStatus, update).Get(ctx, nil); err != nil {
			return fmt.Errorf("failed to update transfer status: %w", err)
		}

		publish := PublishTransferEventInput{
			Transfer: input,
			Status:   status,
			Slot:     slot,
			Error:    errMsg,
		}
		if err := workflow.ExecuteActivity(ctx, a.PublishTransferEvent, publish).Get(ctx, nil); err != nil {
			// Subscribers miss one event but the record is already correct.
			logger.Warn("failed to publish transfer event", "signature", input.Signature, "status", status, "error", err)
		}

		result.Status = status
		result.Slot = slot
		result.Error = errMsg
		return nil
	}

	seen := false
	for {
		var status *CheckSignatureStatusResult
		err := workflow.ExecuteActivity(ctx, a.CheckSignatureStatus, CheckSignatureStatusInput{Signature: input.Signature}).Get(ctx, &status)
		result.Polls++
		if err != nil {
			// Transient outages should not end tracking early.
			logger.Warn("signature status check failed", "signature", input.Signature, "error", err)
		}

		if err == nil && status.Found {
			seen = true
			switch {
			case status.Error != nil:
				if err := record(db.StatusFailed, status.Slot, status.Error, true); err != nil {
					return result, err
				}
				logger.Info("transfer failed on chain", "signature", input.Signature)
				return result, nil

			case status.Status == db.StatusFinalized:
				if err := record(db.StatusFinalized, status.Slot, nil, true); err != nil {
					return result, err
				}
				logger.Info("transfer finalized", "signature", input.Signature, "slot", status.Slot)
				return result, nil

			case status.Status == db.StatusConfirmed && result.Status != db.StatusConfirmed:
				if err := record(db.StatusConfirmed, status.Slot, nil, false); err != nil {
					return result, err
				}
			}
		}

		if !workflow.Now(ctx).Before(deadline) {
			break
		}
		if err := workflow.Sleep(ctx, pollInterval); err != nil {
			return result, err
		}
	}

	result.TimedOut = true
	if !seen {
		msg := fmt.Sprintf("transaction not seen within %s", timeout)
		if err := record(db.StatusFailed, 0, &msg, true); err != nil {
			return result, err
		}
	}

	logger.Warn("transfer tracking timed out",
		"signature", input.Signature,
		"status", result.Status,
		"polls", result.Polls,
	)
	return result, nil
}

// ReconcileTransfersWorkflow resumes tracking for stored transfers that are
// still pending. It is run on a schedule by the worker.
func ReconcileTransfersWorkflow(ctx workflow.Context, batch int32) (*ResumePendingTransfersResult, error) {
	if batch <= 0 {
		batch = DefaultResumeBatch
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var result *ResumePendingTransfersResult
	if err := workflow.ExecuteActivity(ctx, a.ResumePendingTransfers, batch).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to resume pending transfers: %w", err)
	}
	return result, nil
}
