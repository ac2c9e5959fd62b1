package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/brojonat/solapi/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error)
	GetVersion(ctx context.Context) (*rpc.GetVersionResult, error)
}

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// RPCError wraps a failure returned by the RPC node (transport or JSON-RPC error).
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("solana rpc %s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// Client provides the ledger operations used by the HTTP gateway and the CLI.
// It wraps the RPC client with logging, metrics and domain types.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g. "devnet" or the RPC host)

	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithCommitment sets the commitment used for reads and awaited by transfers.
func WithCommitment(commitment rpc.CommitmentType) Option {
	return func(c *Client) { c.commitment = commitment }
}

// WithConfirmation sets how long transfers wait for confirmation and how often they poll.
func WithConfirmation(timeout, pollInterval time.Duration) Option {
	return func(c *Client) {
		c.confirmTimeout = timeout
		c.pollInterval = pollInterval
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:            rpcClient,
		logger:         logger,
		metrics:        m,
		endpoint:       endpoint,
		commitment:     rpc.CommitmentConfirmed,
		confirmTimeout: 60 * time.Second,
		pollInterval:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commitment returns the commitment level the client reads and confirms at.
func (c *Client) Commitment() rpc.CommitmentType {
	return c.commitment
}

// observe records metrics for an RPC call and converts its error into an *RPCError.
func (c *Client) observe(ctx context.Context, method string, start time.Time, err error) error {
	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, rpc.ErrNotFound) {
			status = "not_found"
		}
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())

	if err == nil || errors.Is(err, rpc.ErrNotFound) {
		return err
	}
	c.logger.ErrorContext(ctx, "solana rpc call failed",
		"method", method,
		"endpoint", c.endpoint,
		"error", err,
	)
	return &RPCError{Method: method, Err: err}
}

// Version returns the solana-core version of the connected node.
func (c *Client) Version(ctx context.Context) (string, error) {
	start := time.Now()
	out, err := c.rpc.GetVersion(ctx)
	if err := c.observe(ctx, "GetVersion", start, err); err != nil {
		return "", err
	}
	return out.SolanaCore, nil
}

// GetBalance returns the balance of account in lamports.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, account, c.commitment)
	if err := c.observe(ctx, "GetBalance", start, err); err != nil {
		return 0, err
	}

	c.logger.DebugContext(ctx, "fetched balance",
		"address", account.String(),
		"lamports", out.Value,
	)
	return out.Value, nil
}

// GetAccount returns account state, or ErrAccountNotFound if the ledger has no such account.
func (c *Client) GetAccount(ctx context.Context, account solana.PublicKey) (*Account, error) {
	zero := uint64(0)
	opts := &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
		// Only metadata is returned, the data itself is never needed here.
		DataSlice: &rpc.DataSlice{Offset: &zero, Length: &zero},
	}

	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, account, opts)
	if err := c.observe(ctx, "GetAccountInfo", start, err); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}

	return &Account{
		Address:    account,
		Lamports:   out.Value.Lamports,
		Owner:      out.Value.Owner,
		Executable: out.Value.Executable,
		RentEpoch:  rentEpoch(out.Value),
		Space:      out.Value.Space,
	}, nil
}

// rentEpoch clamps the node's rent epoch to uint64. Rent-exempt accounts
// report u64::MAX, which arrives as a big integer.
func rentEpoch(acc *rpc.Account) uint64 {
	if acc.RentEpoch == nil || acc.RentEpoch.Sign() < 0 {
		return 0
	}
	if !acc.RentEpoch.IsUint64() {
		return math.MaxUint64
	}
	return acc.RentEpoch.Uint64()
}

// RequestAirdrop asks the cluster faucet for lamports. Only devnet and testnet honor it.
func (c *Client) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.RequestAirdrop(ctx, account, lamports, c.commitment)
	if err := c.observe(ctx, "RequestAirdrop", start, err); err != nil {
		return solana.Signature{}, err
	}

	c.logger.InfoContext(ctx, "airdrop requested",
		"address", account.String(),
		"lamports", lamports,
		"signature", sig.String(),
	)
	return sig, nil
}

// buildTransaction assembles an unsigned transaction against the latest blockhash.
func (c *Client) buildTransaction(ctx context.Context, payer solana.PublicKey, instructions ...solana.Instruction) (*solana.Transaction, error) {
	start := time.Now()
	latest, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err := c.observe(ctx, "GetLatestBlockhash", start, err); err != nil {
		return nil, err
	}
	if latest == nil || latest.Value == nil {
		return nil, &RPCError{Method: "GetLatestBlockhash", Err: errors.New("empty response")}
	}

	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

func transferInstructions(from, to solana.PublicKey, lamports uint64, memo string) []solana.Instruction {
	instructions := []solana.Instruction{
		system.NewTransferInstruction(lamports, from, to).Build(),
	}
	if memo != "" {
		instructions = append(instructions, memoInstruction(memo, from))
	}
	return instructions
}

// signAndSend signs tx with signers and submits it with preflight at the client's commitment.
func (c *Client) signAndSend(ctx context.Context, tx *solana.Transaction, signers ...solana.PrivateKey) (solana.Signature, error) {
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err := c.observe(ctx, "SendTransaction", start, err); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// TransferFee returns the fee the cluster would charge for a transfer from -> to.
func (c *Client) TransferFee(ctx context.Context, from, to solana.PublicKey, lamports uint64) (uint64, error) {
	tx, err := c.buildTransaction(ctx, from, transferInstructions(from, to, lamports, "")...)
	if err != nil {
		return 0, err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("failed to encode message: %w", err)
	}

	start := time.Now()
	out, err := c.rpc.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(msg), c.commitment)
	if err := c.observe(ctx, "GetFeeForMessage", start, err); err != nil {
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, &RPCError{Method: "GetFeeForMessage", Err: errors.New("fee unavailable for message")}
	}
	return *out.Value, nil
}

// Transfer signs and submits a SOL transfer, then waits until the cluster
// reports it at the client's commitment. The send itself is never retried.
// On a confirmation failure the returned result still carries the signature.
func (c *Client) Transfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	from := params.Signer.PublicKey()
	result := &TransferResult{
		From:     from,
		To:       params.To,
		Lamports: params.Lamports,
	}

	tx, err := c.buildTransaction(ctx, from, transferInstructions(from, params.To, params.Lamports, params.Memo)...)
	if err != nil {
		c.metrics.RecordTransfer("error", params.Lamports)
		return nil, err
	}

	sig, err := c.signAndSend(ctx, tx, params.Signer)
	if err != nil {
		c.metrics.RecordTransfer("error", params.Lamports)
		return nil, err
	}
	result.Signature = sig

	c.logger.InfoContext(ctx, "transfer submitted",
		"signature", sig.String(),
		"from", from.String(),
		"to", params.To.String(),
		"lamports", params.Lamports,
	)

	status, err := c.WaitForConfirmation(ctx, sig, c.commitment)
	if err != nil {
		c.metrics.RecordTransfer("unconfirmed", params.Lamports)
		return result, err
	}
	result.Status = status

	c.metrics.RecordTransfer("success", params.Lamports)
	return result, nil
}

// EmptyWallet sends the signer's entire balance minus the transaction fee to to.
func (c *Client) EmptyWallet(ctx context.Context, signer solana.PrivateKey, to solana.PublicKey) (*TransferResult, error) {
	from := signer.PublicKey()

	balance, err := c.GetBalance(ctx, from)
	if err != nil {
		return nil, err
	}
	fee, err := c.TransferFee(ctx, from, to, balance)
	if err != nil {
		return nil, err
	}
	if balance <= fee {
		return nil, fmt.Errorf("%w: balance %d lamports does not cover fee %d", ErrInsufficientFunds, balance, fee)
	}

	return c.Transfer(ctx, TransferParams{
		Signer:   signer,
		To:       to,
		Lamports: balance - fee,
	})
}

// GetTransaction fetches a transaction by signature, or ErrTransactionNotFound.
func (c *Client) GetTransaction(ctx context.Context, signature solana.Signature) (*TransactionInfo, error) {
	commitment := c.commitment
	if commitment == rpc.CommitmentProcessed {
		// getTransaction does not accept processed
		commitment = rpc.CommitmentConfirmed
	}
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, signature, opts)
	if err := c.observe(ctx, "GetTransaction", start, err); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
		}
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
	}

	info, err := transactionFromResult(signature, result)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to decode transaction, returning metadata only",
			"signature", signature.String(),
			"error", err,
		)
	}
	return info, nil
}

// transactionFromResult converts an RPC result into TransactionInfo. If the
// transaction body cannot be decoded the metadata is still returned along with the error.
func transactionFromResult(signature solana.Signature, result *rpc.GetTransactionResult) (*TransactionInfo, error) {
	info := &TransactionInfo{
		Signature: signature.String(),
		Slot:      result.Slot,
		Accounts:  []string{},
	}
	if result.BlockTime != nil {
		bt := int64(*result.BlockTime)
		info.BlockTime = &bt
	}
	if result.Meta != nil {
		fee := result.Meta.Fee
		info.Fee = &fee
		info.Success = result.Meta.Err == nil
		if result.Meta.Err != nil {
			msg := fmt.Sprintf("%v", result.Meta.Err)
			info.Err = &msg
		}
	}

	if result.Transaction == nil {
		return info, nil
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return info, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx == nil {
		return info, nil
	}

	keys := make(solana.PublicKeySlice, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if result.Meta != nil {
		keys = append(keys, result.Meta.LoadedAddresses.Writable...)
		keys = append(keys, result.Meta.LoadedAddresses.ReadOnly...)
	}
	for _, k := range keys {
		info.Accounts = append(info.Accounts, k.String())
	}

	info.Transfers, info.Memo = parseInstructions(tx, keys)
	return info, nil
}
