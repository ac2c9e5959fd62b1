package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brojonat/solapi/service/metrics"
	"github.com/brojonat/solapi/service/solana"
)

// errorKind is one entry of the API's flat error taxonomy.
type errorKind struct {
	name   string // metric label
	label  string // value of the "error" field
	status int
}

var (
	kindSolanaRPC        = errorKind{"solana_rpc", "Solana RPC error", http.StatusBadGateway}
	kindInvalidPublicKey = errorKind{"invalid_public_key", "Invalid public key", http.StatusBadRequest}
	kindWalletNotFound   = errorKind{"wallet_not_found", "Wallet not found", http.StatusNotFound}
	kindInvalidSignature = errorKind{"invalid_signature", "Invalid signature", http.StatusBadRequest}
	kindInvalidAmount    = errorKind{"invalid_amount", "Invalid amount", http.StatusBadRequest}
	kindBadRequest       = errorKind{"bad_request", "Bad request", http.StatusBadRequest}
	kindUnauthorized     = errorKind{"unauthorized", "Unauthorized", http.StatusUnauthorized}
	kindInternal         = errorKind{"internal", "Internal server error", http.StatusInternalServerError}
)

// apiError is an error that has been classified into the taxonomy.
type apiError struct {
	kind   errorKind
	detail string
	err    error // underlying cause, may be nil
}

func (e *apiError) Error() string {
	return e.kind.label + ": " + e.detail
}

func (e *apiError) Unwrap() error {
	return e.err
}

func newAPIError(kind errorKind, format string, args ...any) *apiError {
	return &apiError{kind: kind, detail: fmt.Sprintf(format, args...)}
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classify maps an error returned by the ledger layer to an apiError.
func classify(err error) *apiError {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rpcErr *solana.RPCError
	switch {
	case errors.Is(err, solana.ErrInvalidPublicKey):
		return &apiError{kind: kindInvalidPublicKey, detail: err.Error(), err: err}
	case errors.Is(err, solana.ErrInvalidSignature):
		return &apiError{kind: kindInvalidSignature, detail: err.Error(), err: err}
	case errors.Is(err, solana.ErrInvalidAmount):
		return &apiError{kind: kindInvalidAmount, detail: err.Error(), err: err}
	case errors.Is(err, solana.ErrInvalidPrivateKey):
		return &apiError{kind: kindBadRequest, detail: err.Error(), err: err}
	case errors.Is(err, solana.ErrAccountNotFound), errors.Is(err, solana.ErrTransactionNotFound):
		return &apiError{kind: kindWalletNotFound, detail: err.Error(), err: err}
	case errors.As(err, &rpcErr),
		errors.Is(err, solana.ErrTransactionFailed),
		errors.Is(err, solana.ErrConfirmationTimeout):
		return &apiError{kind: kindSolanaRPC, detail: err.Error(), err: err}
	default:
		return &apiError{kind: kindInternal, detail: err.Error(), err: err}
	}
}

// writeAPIError classifies err, logs it at a level matching its kind and
// writes the JSON error body.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error, m *metrics.Metrics, logger *slog.Logger) {
	apiErr := classify(err)
	m.RecordAPIError(apiErr.kind.name)

	level := slog.LevelDebug
	if apiErr.kind.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", apiErr.kind.status,
		"error", err,
	)

	writeJSON(w, errorResponse{
		Error:   apiErr.kind.label,
		Message: apiErr.Error(),
	}, apiErr.kind.status)
}
