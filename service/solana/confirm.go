package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// commitmentRank orders confirmation levels so a status can be compared to a target.
func commitmentRank(status string) int {
	switch status {
	case string(rpc.ConfirmationStatusProcessed):
		return 1
	case string(rpc.ConfirmationStatusConfirmed):
		return 2
	case string(rpc.ConfirmationStatusFinalized):
		return 3
	default:
		return 0
	}
}

// Reached reports whether the status is at or beyond the target commitment.
func (s *SignatureStatus) Reached(target rpc.CommitmentType) bool {
	return s != nil && commitmentRank(s.Status) >= commitmentRank(string(target))
}

// SignatureStatus returns the cluster's current status for signature, or
// ErrTransactionNotFound if the cluster has not seen it.
func (c *Client) SignatureStatus(ctx context.Context, signature solana.Signature) (*SignatureStatus, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, true, signature)
	if err := c.observe(ctx, "GetSignatureStatuses", start, err); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
		}
		return nil, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
	}

	v := out.Value[0]
	status := &SignatureStatus{
		Slot:          v.Slot,
		Confirmations: v.Confirmations,
		Status:        string(v.ConfirmationStatus),
	}
	if v.Err != nil {
		msg := fmt.Sprintf("%v", v.Err)
		status.Err = &msg
	}
	return status, nil
}

// WaitForConfirmation polls the signature status until it reaches target,
// fails on chain, or the client's confirmation timeout elapses. Transient RPC
// errors while polling are logged and polling continues.
func (c *Client) WaitForConfirmation(ctx context.Context, signature solana.Signature, target rpc.CommitmentType) (*SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	start := time.Now()
	record := func(outcome string) {
		c.metrics.RecordConfirmationWait(string(target), outcome, time.Since(start).Seconds())
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.SignatureStatus(ctx, signature)
		switch {
		case err == nil && status.Err != nil:
			record("failed")
			return status, fmt.Errorf("%w: %s", ErrTransactionFailed, *status.Err)
		case err == nil && status.Reached(target):
			record("success")
			c.logger.DebugContext(ctx, "transaction confirmed",
				"signature", signature.String(),
				"status", status.Status,
				"slot", status.Slot,
			)
			return status, nil
		case err != nil && !errors.Is(err, ErrTransactionNotFound) && ctx.Err() == nil:
			c.logger.WarnContext(ctx, "signature status poll failed, retrying",
				"signature", signature.String(),
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			record("timeout")
			return nil, fmt.Errorf("%w: %s after %s: %w", ErrConfirmationTimeout, signature, time.Since(start).Round(time.Millisecond), ctx.Err())
		case <-ticker.C:
		}
	}
}
