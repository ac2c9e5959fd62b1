package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/solapi/service/db"
	"github.com/brojonat/solapi/service/metrics"
	natspkg "github.com/brojonat/solapi/service/nats"
	"github.com/brojonat/solapi/service/solana"
	"github.com/brojonat/solapi/service/temporal"
	"github.com/mr-tron/base58"
)

const (
	maxRequestBodySize = 64 << 10
	maxMemoLength      = 512
	serviceName        = "solapi"
	serviceVersion     = "1.0.0"
)

type balanceResponse struct {
	Address  string  `json:"address"`
	Balance  float64 `json:"balance"`
	Lamports uint64  `json:"lamports"`
}

type accountInfoResponse struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rent_epoch"`
}

type transferRequest struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Amount     float64 `json:"amount"`
	PrivateKey *string `json:"private_key,omitempty"`
	Memo       string  `json:"memo,omitempty"`
}

type transferResponse struct {
	Signature string `json:"signature"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

type transactionResponse struct {
	Signature string                       `json:"signature"`
	Slot      uint64                       `json:"slot"`
	BlockTime *int64                       `json:"block_time"`
	Success   bool                         `json:"success"`
	Fee       *uint64                      `json:"fee"`
	Accounts  []string                     `json:"accounts"`
	Error     *string                      `json:"error,omitempty"`
	Memo      *string                      `json:"memo,omitempty"`
	Transfers []solana.TransferInstruction `json:"transfers,omitempty"`
}

type transferRecordResponse struct {
	Signature   string    `json:"signature"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Lamports    uint64    `json:"lamports"`
	Amount      float64   `json:"amount"`
	Memo        *string   `json:"memo,omitempty"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listTransfersResponse struct {
	Transfers []transferRecordResponse `json:"transfers"`
	Count     int                      `json:"count"`
	Limit     int32                    `json:"limit"`
	Offset    int32                    `json:"offset"`
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// handleRoot returns static service information.
// GET /
func handleRoot() http.Handler {
	info := map[string]any{
		"message":     "Solana HTTP API Server",
		"version":     serviceVersion,
		"description": "HTTP server for interacting with Solana blockchain",
		"endpoints": map[string]string{
			"health":      "GET /health - Health check",
			"balance":     "GET /balance/{address} - Get SOL balance for an address",
			"account":     "GET /account/{address} - Get account information",
			"transfer":    "POST /transfer - Transfer SOL between accounts",
			"transaction": "GET /transaction/{signature} - Get transaction details",
		},
		"examples": map[string]any{
			"balance": "/balance/11111111111111111111111111111111",
			"transfer": map[string]any{
				"method": "POST",
				"url":    "/transfer",
				"body": map[string]any{
					"from":        "sender_public_key",
					"to":          "recipient_public_key",
					"amount":      0.1,
					"private_key": "sender_private_key_base58",
				},
			},
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, info, http.StatusOK)
	})
}

// handleHealth reports liveness. It never contacts the RPC node.
// GET /health
func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   serviceName,
		}, http.StatusOK)
	})
}

// handleGetBalance returns the SOL balance of an address.
// GET /balance/{address}
func handleGetBalance(ledger Ledger, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		pk, err := solana.ParsePublicKey(address)
		if err != nil {
			writeAPIError(w, r, invalidPublicKey(address, err), m, logger)
			return
		}

		lamports, err := ledger.GetBalance(r.Context(), pk)
		if err != nil {
			writeAPIError(w, r, err, m, logger)
			return
		}

		writeJSON(w, balanceResponse{
			Address:  pk.String(),
			Balance:  solana.LamportsToSOL(lamports),
			Lamports: lamports,
		}, http.StatusOK)
	})
}

// handleGetAccount returns on-chain account metadata.
// GET /account/{address}
func handleGetAccount(ledger Ledger, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		pk, err := solana.ParsePublicKey(address)
		if err != nil {
			writeAPIError(w, r, invalidPublicKey(address, err), m, logger)
			return
		}

		account, err := ledger.GetAccount(r.Context(), pk)
		if err != nil {
			if errors.Is(err, solana.ErrAccountNotFound) {
				err = &apiError{kind: kindWalletNotFound, detail: "Account not found: " + pk.String(), err: err}
			}
			writeAPIError(w, r, err, m, logger)
			return
		}

		writeJSON(w, accountInfoResponse{
			Address:    account.Address.String(),
			Lamports:   account.Lamports,
			Owner:      account.Owner.String(),
			Executable: account.Executable,
			RentEpoch:  account.RentEpoch,
		}, http.StatusOK)
	})
}

// handleTransfer signs and submits a SOL transfer with the caller's key.
// POST /transfer
//
// Input is validated in a fixed order: addresses, amount, then the private
// key. Nothing reaches the ledger until every check passes.
func handleTransfer(ledger Ledger, hooks *transferHooks, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeAPIError(w, r, newAPIError(kindBadRequest, "request body too large"), m, logger)
				return
			}
			writeAPIError(w, r, newAPIError(kindBadRequest, "invalid request body: %v", err), m, logger)
			return
		}

		from, err := solana.ParsePublicKey(req.From)
		if err != nil {
			writeAPIError(w, r, invalidPublicKey(req.From, err), m, logger)
			return
		}
		to, err := solana.ParsePublicKey(req.To)
		if err != nil {
			writeAPIError(w, r, invalidPublicKey(req.To, err), m, logger)
			return
		}

		if req.Amount <= 0 {
			writeAPIError(w, r, newAPIError(kindInvalidAmount, "Amount must be greater than 0"), m, logger)
			return
		}
		lamports, err := solana.SOLToLamports(req.Amount)
		if err != nil {
			writeAPIError(w, r, &apiError{kind: kindInvalidAmount, detail: err.Error(), err: err}, m, logger)
			return
		}

		if len(req.Memo) > maxMemoLength {
			writeAPIError(w, r, newAPIError(kindBadRequest, "memo exceeds %d bytes", maxMemoLength), m, logger)
			return
		}

		if req.PrivateKey == nil || strings.TrimSpace(*req.PrivateKey) == "" {
			writeAPIError(w, r, newAPIError(kindBadRequest, "Private key is required for transfers"), m, logger)
			return
		}
		// Never echo the key back.
		if _, err := base58.Decode(strings.TrimSpace(*req.PrivateKey)); err != nil {
			writeAPIError(w, r, &apiError{kind: kindBadRequest, detail: "Invalid private key format", err: solana.ErrInvalidPrivateKey}, m, logger)
			return
		}
		signer, err := solana.ParsePrivateKey(*req.PrivateKey)
		if err != nil {
			writeAPIError(w, r, &apiError{kind: kindBadRequest, detail: "Invalid private key", err: solana.ErrInvalidPrivateKey}, m, logger)
			return
		}
		if !signer.PublicKey().Equals(from) {
			writeAPIError(w, r, newAPIError(kindBadRequest, "Private key doesn't match from address"), m, logger)
			return
		}

		result, err := ledger.Transfer(r.Context(), solana.TransferParams{
			Signer:   signer,
			To:       to,
			Lamports: lamports,
			Memo:     req.Memo,
		})
		if result == nil {
			writeAPIError(w, r, err, m, logger)
			return
		}

		// The transaction was sent; record it whatever the confirmation outcome.
		hooks.afterSubmit(r.Context(), result, req.Memo, err)

		if err != nil {
			writeAPIError(w, r, &apiError{
				kind:   kindSolanaRPC,
				detail: "transaction " + result.Signature.String() + " was submitted but not confirmed: " + err.Error(),
				err:    err,
			}, m, logger)
			return
		}

		logger.Info("transfer completed",
			"signature", result.Signature.String(),
			"from", from.String(),
			"to", to.String(),
			"lamports", lamports,
			"explorer", solana.ExplorerTxURL(result.Signature.String(), hooks.cluster),
		)

		writeJSON(w, transferResponse{
			Signature: result.Signature.String(),
			Success:   true,
			Message:   "Successfully transferred " + strconv.FormatFloat(req.Amount, 'f', -1, 64) + " SOL",
		}, http.StatusOK)
	})
}

// handleGetTransaction returns a transaction by signature.
// GET /transaction/{signature}
func handleGetTransaction(ledger Ledger, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.PathValue("signature")
		sig, err := solana.ParseSignature(raw)
		if err != nil {
			writeAPIError(w, r, &apiError{kind: kindInvalidSignature, detail: raw, err: err}, m, logger)
			return
		}

		tx, err := ledger.GetTransaction(r.Context(), sig)
		if err != nil {
			if errors.Is(err, solana.ErrTransactionNotFound) {
				err = &apiError{kind: kindWalletNotFound, detail: "Transaction not found: " + sig.String(), err: err}
			}
			writeAPIError(w, r, err, m, logger)
			return
		}

		accounts := tx.Accounts
		if accounts == nil {
			accounts = []string{}
		}
		writeJSON(w, transactionResponse{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			BlockTime: tx.BlockTime,
			Success:   tx.Success,
			Fee:       tx.Fee,
			Accounts:  accounts,
			Error:     tx.Err,
			Memo:      tx.Memo,
			Transfers: tx.Transfers,
		}, http.StatusOK)
	})
}

// handleListTransfers lists transfers recorded by this gateway, newest first.
// GET /transfers?address={address}&limit={limit}&offset={offset}
func handleListTransfers(store TransferStore, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		address := q.Get("address")
		if address != "" {
			pk, err := solana.ParsePublicKey(address)
			if err != nil {
				writeAPIError(w, r, invalidPublicKey(address, err), m, logger)
				return
			}
			address = pk.String()
		}

		limit, err := parseInt32Param(q.Get("limit"), db.DefaultListLimit)
		if err != nil || limit <= 0 || limit > db.MaxListLimit {
			writeAPIError(w, r, newAPIError(kindBadRequest, "limit must be between 1 and %d", db.MaxListLimit), m, logger)
			return
		}
		offset, err := parseInt32Param(q.Get("offset"), 0)
		if err != nil || offset < 0 {
			writeAPIError(w, r, newAPIError(kindBadRequest, "offset must be a non-negative integer"), m, logger)
			return
		}

		transfers, err := store.ListTransfers(r.Context(), db.ListTransfersParams{
			Address: address,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			writeAPIError(w, r, err, m, logger)
			return
		}

		resp := listTransfersResponse{
			Transfers: make([]transferRecordResponse, len(transfers)),
			Count:     len(transfers),
			Limit:     limit,
			Offset:    offset,
		}
		for i, t := range transfers {
			resp.Transfers[i] = transferToResponse(t)
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

func transferToResponse(t *db.Transfer) transferRecordResponse {
	return transferRecordResponse{
		Signature:   t.Signature,
		FromAddress: t.FromAddress,
		ToAddress:   t.ToAddress,
		Lamports:    t.Lamports,
		Amount:      solana.LamportsToSOL(t.Lamports),
		Memo:        t.Memo,
		Status:      t.Status,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func parseInt32Param(raw string, def int32) (int32, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func invalidPublicKey(address string, err error) error {
	return &apiError{kind: kindInvalidPublicKey, detail: address, err: err}
}

// transferHooks runs the optional side effects of a submitted transfer. Every
// collaborator may be nil and no failure here affects the HTTP response.
type transferHooks struct {
	store        TransferStore
	publisher    natspkg.Publisher
	tracker      temporal.Tracker
	trackTimeout time.Duration
	cluster      string
	logger       *slog.Logger
}

// submittedStatus maps the outcome of Transfer to an audit log status.
func submittedStatus(result *solana.TransferResult, err error) (string, *string) {
	switch {
	case errors.Is(err, solana.ErrTransactionFailed):
		msg := err.Error()
		return db.StatusFailed, &msg
	case err != nil || result.Status == nil:
		return db.StatusSubmitted, nil
	case result.Status.Status == "finalized":
		return db.StatusFinalized, nil
	default:
		return db.StatusConfirmed, nil
	}
}

func (h *transferHooks) afterSubmit(ctx context.Context, result *solana.TransferResult, memo string, transferErr error) {
	if h == nil {
		return
	}
	// Detach from the request so a disconnecting client does not abort bookkeeping.
	ctx = context.WithoutCancel(ctx)

	status, errMsg := submittedStatus(result, transferErr)
	sig := result.Signature.String()
	var memoPtr *string
	if memo != "" {
		memoPtr = &memo
	}

	if h.store != nil {
		_, err := h.store.CreateTransfer(ctx, db.CreateTransferParams{
			Signature:   sig,
			FromAddress: result.From.String(),
			ToAddress:   result.To.String(),
			Lamports:    result.Lamports,
			Memo:        memoPtr,
			Status:      status,
			Error:       errMsg,
		})
		if err != nil {
			h.logger.Error("failed to record transfer", "signature", sig, "error", err)
		}
	}

	if h.publisher != nil {
		event := &natspkg.TransferEvent{
			Signature:   sig,
			FromAddress: result.From.String(),
			ToAddress:   result.To.String(),
			Lamports:    result.Lamports,
			Memo:        memoPtr,
			Status:      status,
			Error:       errMsg,
			PublishedAt: time.Now().UTC(),
		}
		if result.Status != nil {
			event.Slot = result.Status.Slot
		}
		if err := h.publisher.PublishTransfer(ctx, event); err != nil {
			h.logger.Warn("failed to publish transfer event", "signature", sig, "error", err)
		}
	}

	if h.tracker != nil && !db.IsTerminal(status) {
		workflowID, err := h.tracker.StartTransferTracking(ctx, temporal.TrackTransferInput{
			Signature:   sig,
			FromAddress: result.From.String(),
			ToAddress:   result.To.String(),
			Lamports:    result.Lamports,
			Memo:        memoPtr,
			SubmittedAt: time.Now().UTC(),
			Timeout:     h.trackTimeout,
		})
		if err != nil {
			h.logger.Error("failed to start transfer tracking", "signature", sig, "error", err)
			return
		}
		h.logger.Debug("transfer tracking started", "signature", sig, "workflow_id", workflowID)
	}
}
