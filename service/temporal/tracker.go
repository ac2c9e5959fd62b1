package temporal

import (
	"context"
)

// Tracker starts transfer tracking workflows.
type Tracker interface {
	// StartTransferTracking starts TrackTransferWorkflow for the transfer and
	// returns the workflow run ID. Starting a transfer that is already being
	// tracked returns the running workflow.
	StartTransferTracking(ctx context.Context, input TrackTransferInput) (string, error)
}

// TrackWorkflowID returns the workflow ID that tracks signature.
func TrackWorkflowID(signature string) string {
	return "track-transfer-" + signature
}

// ReconcileScheduleID is the ID of the schedule that runs ReconcileTransfersWorkflow.
const ReconcileScheduleID = "solapi-reconcile-transfers"
