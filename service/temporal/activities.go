package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solapi/service/db"
	"github.com/brojonat/solapi/service/metrics"
	natspkg "github.com/brojonat/solapi/service/nats"
	"github.com/brojonat/solapi/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// TrackTransferInput identifies a submitted transfer and bounds how long it is tracked.
type TrackTransferInput struct {
	Signature   string    `json:"signature"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Lamports    uint64    `json:"lamports"`
	Memo        *string   `json:"memo,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`

	// Zero values fall back to DefaultPollInterval and DefaultTrackTimeout.
	PollInterval time.Duration `json:"poll_interval"`
	Timeout      time.Duration `json:"timeout"`
}

// TrackTransferResult is the outcome of tracking a transfer.
type TrackTransferResult struct {
	Signature string  `json:"signature"`
	Status    string  `json:"status"` // last status recorded
	Slot      uint64  `json:"slot,omitempty"`
	Error     *string `json:"error,omitempty"`
	Polls     int     `json:"polls"`
	TimedOut  bool    `json:"timed_out"`
}

// CheckSignatureStatusInput contains parameters for the CheckSignatureStatus activity.
type CheckSignatureStatusInput struct {
	Signature string `json:"signature"`
}

// CheckSignatureStatusResult is the cluster's view of a signature. Found is
// false while the cluster has not seen the transaction.
type CheckSignatureStatusResult struct {
	Found  bool    `json:"found"`
	Status string  `json:"status,omitempty"`
	Slot   uint64  `json:"slot,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// UpdateTransferStatusInput contains parameters for the UpdateTransferStatus activity.
type UpdateTransferStatusInput struct {
	Signature   string    `json:"signature"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	Final       bool      `json:"final"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PublishTransferEventInput contains parameters for the PublishTransferEvent activity.
type PublishTransferEventInput struct {
	Transfer TrackTransferInput `json:"transfer"`
	Status   string             `json:"status"`
	Slot     uint64             `json:"slot,omitempty"`
	Error    *string            `json:"error,omitempty"`
}

// ResumePendingTransfersResult reports how many unfinished transfers were re-tracked.
type ResumePendingTransfersResult struct {
	Pending int `json:"pending"`
	Started int `json:"started"`
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	UpdateTransferStatus(ctx context.Context, signature, status string, errMsg *string) (*db.Transfer, error)
	ListPendingTransfers(ctx context.Context, limit int32) ([]*db.Transfer, error)
}

// SolanaClientInterface defines the Solana operations needed by activities.
type SolanaClientInterface interface {
	SignatureStatus(ctx context.Context, signature solanago.Signature) (*solana.SignatureStatus, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishTransfer(ctx context.Context, event *natspkg.TransferEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// The store, publisher and tracker are optional; activities that need a
// missing dependency do nothing.
type Activities struct {
	store     StoreInterface
	solana    SolanaClientInterface
	publisher PublisherInterface
	tracker   Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Applied to transfers resumed by reconciliation. Zero uses DefaultTrackTimeout.
	trackTimeout time.Duration
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	solanaClient SolanaClientInterface,
	publisher PublisherInterface,
	tracker Tracker,
	trackTimeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		solana:    solanaClient,
		publisher: publisher,
		tracker:   tracker,
		metrics:   m,
		logger:    logger,

		trackTimeout: trackTimeout,
	}
}

// CheckSignatureStatus asks the cluster for the current status of a signature.
// RPC failures are returned so Temporal retries them.
func (a *Activities) CheckSignatureStatus(ctx context.Context, input CheckSignatureStatusInput) (*CheckSignatureStatusResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("CheckSignatureStatus", time.Since(start).Seconds())
	}()

	sig, err := solanago.SignatureFromBase58(input.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", input.Signature, err)
	}

	status, err := a.solana.SignatureStatus(ctx, sig)
	if errors.Is(err, solana.ErrTransactionNotFound) {
		a.logger.DebugContext(ctx, "signature not yet visible", "signature", input.Signature)
		return &CheckSignatureStatusResult{Found: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}

	return &CheckSignatureStatusResult{
		Found:  true,
		Status: status.Status,
		Slot:   status.Slot,
		Error:  status.Err,
	}, nil
}

// UpdateTransferStatus records a status change in the audit store.
func (a *Activities) UpdateTransferStatus(ctx context.Context, input UpdateTransferStatusInput) error {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("UpdateTransferStatus", time.Since(start).Seconds())
	}()

	a.metrics.RecordTransferStatus(input.Status)
	if input.Final && !input.SubmittedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(input.Status, time.Since(input.SubmittedAt).Seconds())
	}

	if a.store == nil {
		return nil
	}

	_, err := a.store.UpdateTransferStatus(ctx, input.Signature, input.Status, input.Error)
	if errors.Is(err, db.ErrNotFound) {
		// Transfers submitted before the store was configured have no record.
		a.logger.WarnContext(ctx, "no transfer record to update", "signature", input.Signature)
		return nil
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to update transfer status",
			"signature", input.Signature,
			"status", input.Status,
			"error", err,
		)
		return fmt.Errorf("failed to update transfer status: %w", err)
	}

	a.logger.InfoContext(ctx, "transfer status updated",
		"signature", input.Signature,
		"status", input.Status,
	)
	return nil
}

// PublishTransferEvent announces a status change on NATS.
func (a *Activities) PublishTransferEvent(ctx context.Context, input PublishTransferEventInput) error {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("PublishTransferEvent", time.Since(start).Seconds())
	}()

	if a.publisher == nil {
		return nil
	}

	event := &natspkg.TransferEvent{
		Signature:   input.Transfer.Signature,
		FromAddress: input.Transfer.FromAddress,
		ToAddress:   input.Transfer.ToAddress,
		Lamports:    input.Transfer.Lamports,
		Memo:        input.Transfer.Memo,
		Status:      input.Status,
		Error:       input.Error,
		Slot:        input.Slot,
		PublishedAt: time.Now().UTC(),
	}
	if err := a.publisher.PublishTransfer(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish transfer event",
			"signature", event.Signature,
			"status", event.Status,
			"error", err,
		)
		return fmt.Errorf("failed to publish transfer event: %w", err)
	}
	return nil
}

// ResumePendingTransfers starts tracking for stored transfers that never reached
// a terminal status, for example because the server restarted mid-transfer.
// Transfers whose tracking workflow is still running are left alone.
func (a *Activities) ResumePendingTransfers(ctx context.Context, limit int32) (*ResumePendingTransfersResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("ResumePendingTransfers", time.Since(start).Seconds())
	}()

	result := &ResumePendingTransfersResult{}
	if a.store == nil || a.tracker == nil {
		return result, nil
	}

	pending, err := a.store.ListPendingTransfers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transfers: %w", err)
	}
	result.Pending = len(pending)

	for _, t := range pending {
		input := TrackTransferInput{
			Signature:   t.Signature,
			FromAddress: t.FromAddress,
			ToAddress:   t.ToAddress,
			Lamports:    t.Lamports,
			Memo:        t.Memo,
			SubmittedAt: t.CreatedAt,
			Timeout:     a.trackTimeout,
		}
		if _, err := a.tracker.StartTransferTracking(ctx, input); err != nil {
			a.logger.WarnContext(ctx, "failed to resume transfer tracking",
				"signature", t.Signature,
				"error", err,
			)
			continue
		}
		result.Started++
	}

	a.logger.InfoContext(ctx, "resumed pending transfers",
		"pending", result.Pending,
		"started", result.Started,
	)
	return result, nil
}
