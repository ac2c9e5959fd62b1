package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	mu sync.Mutex

	balance      uint64
	account      *rpc.Account
	blockhash    solana.Hash
	statuses     []*rpc.SignatureStatusesResult // returned in order, last one repeats
	transactions map[string]*rpc.GetTransactionResult
	fee          *uint64
	version      string
	err          error
	sendErr      error

	sent       []*solana.Transaction
	calls      map[string]int
	airdropped uint64
}

func newMockRPC() *mockRPCClient {
	return &mockRPCClient{
		blockhash: solana.Hash{1, 2, 3},
		calls:     make(map[string]int),
	}
}

func (m *mockRPCClient) called(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
}

func (m *mockRPCClient) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *mockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	m.called("GetBalance")
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetBalanceResult{Value: m.balance}, nil
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	m.called("GetAccountInfo")
	if m.err != nil {
		return nil, m.err
	}
	if m.account == nil {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: m.account}, nil
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	m.called("GetLatestBlockhash")
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash, LastValidBlockHeight: 100},
	}, nil
}

func (m *mockRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.called("SendTransaction")
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	m.mu.Lock()
	m.sent = append(m.sent, tx)
	m.mu.Unlock()
	return tx.Signatures[0], nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	m.called("GetSignatureStatuses")
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	next := m.statuses[0]
	if len(m.statuses) > 1 {
		m.statuses = m.statuses[1:]
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{next}}, nil
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	m.called("GetTransaction")
	if m.err != nil {
		return nil, m.err
	}
	if result, ok := m.transactions[signature.String()]; ok {
		return result, nil
	}
	return nil, rpc.ErrNotFound
}

func (m *mockRPCClient) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error) {
	m.called("RequestAirdrop")
	if m.err != nil {
		return solana.Signature{}, m.err
	}
	m.airdropped = lamports
	return solana.Signature{9}, nil
}

func (m *mockRPCClient) GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
	m.called("GetFeeForMessage")
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetFeeForMessageResult{Value: m.fee}, nil
}

func (m *mockRPCClient) GetVersion(ctx context.Context) (*rpc.GetVersionResult, error) {
	m.called("GetVersion")
	if m.err != nil {
		return nil, m.err
	}
	return &rpc.GetVersionResult{SolanaCore: m.version}, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", nil, logger, WithConfirmation(time.Second, 5*time.Millisecond))
}

func confirmedStatus() *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
}

func TestGetBalance(t *testing.T) {
	mock := newMockRPC()
	mock.balance = 1_500_000_000
	client := newTestClient(mock)

	lamports, err := client.GetBalance(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)
	assert.Equal(t, 1.5, LamportsToSOL(lamports))
}

func TestGetBalance_RPCError(t *testing.T) {
	mock := newMockRPC()
	mock.err = errors.New("connection refused")
	client := newTestClient(mock)

	_, err := client.GetBalance(context.Background(), solana.SystemProgramID)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "GetBalance", rpcErr.Method)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetAccount(t *testing.T) {
	mock := newMockRPC()
	mock.account = &rpc.Account{
		Lamports:   2_000_000,
		Owner:      solana.SystemProgramID,
		Executable: false,
		RentEpoch:  big.NewInt(361),
		Space:      0,
	}
	client := newTestClient(mock)

	addr := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	acc, err := client.GetAccount(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, addr, acc.Address)
	assert.Equal(t, uint64(2_000_000), acc.Lamports)
	assert.Equal(t, solana.SystemProgramID, acc.Owner)
	assert.Equal(t, uint64(361), acc.RentEpoch)
}

func TestGetAccount_RentExemptEpochClamped(t *testing.T) {
	mock := newMockRPC()
	huge, ok := new(big.Int).SetString("18446744073709551615", 10)
	require.True(t, ok)
	mock.account = &rpc.Account{Lamports: 1, Owner: solana.SystemProgramID, RentEpoch: huge}
	client := newTestClient(mock)

	acc, err := client.GetAccount(context.Background(), solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), acc.RentEpoch)
}

func TestGetAccount_NotFound(t *testing.T) {
	mock := newMockRPC()
	client := newTestClient(mock)

	_, err := client.GetAccount(context.Background(), solana.SystemProgramID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	var rpcErr *RPCError
	assert.False(t, errors.As(err, &rpcErr), "not found must not be reported as an RPC failure")
}

func TestTransfer_SignsSendsAndConfirms(t *testing.T) {
	mock := newMockRPC()
	mock.statuses = []*rpc.SignatureStatusesResult{
		nil,
		{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusProcessed},
		confirmedStatus(),
	}
	client := newTestClient(mock)

	signer, err := GenerateKeypair()
	require.NoError(t, err)
	to := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

	result, err := client.Transfer(context.Background(), TransferParams{
		Signer:   signer,
		To:       to,
		Lamports: 100_000_000,
		Memo:     "hello",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Status)
	assert.Equal(t, "confirmed", result.Status.Status)
	assert.Equal(t, signer.PublicKey(), result.From)
	assert.Equal(t, 3, mock.callCount("GetSignatureStatuses"))

	require.Len(t, mock.sent, 1)
	tx := mock.sent[0]
	assert.Equal(t, result.Signature, tx.Signatures[0])
	require.NoError(t, tx.VerifySignatures())
	assert.Equal(t, mock.blockhash, tx.Message.RecentBlockhash)

	transfers, memo := parseInstructions(tx, tx.Message.AccountKeys)
	require.Len(t, transfers, 1)
	assert.Equal(t, ProgramSystem, transfers[0].Program)
	assert.Equal(t, signer.PublicKey().String(), transfers[0].Source)
	assert.Equal(t, to.String(), transfers[0].Destination)
	assert.Equal(t, uint64(100_000_000), transfers[0].Amount)
	require.NotNil(t, memo)
	assert.Equal(t, "hello", *memo)
}

func TestTransfer_SendFailureIsRPCError(t *testing.T) {
	mock := newMockRPC()
	mock.sendErr = errors.New("insufficient funds for rent")
	client := newTestClient(mock)

	signer, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := client.Transfer(context.Background(), TransferParams{Signer: signer, To: solana.SystemProgramID, Lamports: 1})
	require.Error(t, err)
	assert.Nil(t, result)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "SendTransaction", rpcErr.Method)
	assert.Zero(t, mock.callCount("GetSignatureStatuses"))
}

func TestTransfer_OnChainFailure(t *testing.T) {
	mock := newMockRPC()
	mock.statuses = []*rpc.SignatureStatusesResult{
		{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusProcessed, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
	}
	client := newTestClient(mock)

	signer, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := client.Transfer(context.Background(), TransferParams{Signer: signer, To: solana.SystemProgramID, Lamports: 1})
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.NotNil(t, result)
	assert.False(t, result.Signature.IsZero())
}

func TestTransfer_ConfirmationTimeout(t *testing.T) {
	mock := newMockRPC() // status never appears
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(mock, "test", nil, logger, WithConfirmation(30*time.Millisecond, 5*time.Millisecond))

	signer, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := client.Transfer(context.Background(), TransferParams{Signer: signer, To: solana.SystemProgramID, Lamports: 1})
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	require.NotNil(t, result)
	assert.Nil(t, result.Status)
	assert.Equal(t, 1, mock.callCount("SendTransaction"), "send must not be retried")
}

func TestTransferFee(t *testing.T) {
	mock := newMockRPC()
	fee := uint64(5000)
	mock.fee = &fee
	client := newTestClient(mock)

	got, err := client.TransferFee(context.Background(), solana.SystemProgramID, solana.SystemProgramID, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), got)
}

func TestTransferFee_Unavailable(t *testing.T) {
	mock := newMockRPC()
	client := newTestClient(mock)

	_, err := client.TransferFee(context.Background(), solana.SystemProgramID, solana.SystemProgramID, 10)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "GetFeeForMessage", rpcErr.Method)
}

func TestEmptyWallet(t *testing.T) {
	mock := newMockRPC()
	mock.balance = 1_000_000
	fee := uint64(5000)
	mock.fee = &fee
	mock.statuses = []*rpc.SignatureStatusesResult{confirmedStatus()}
	client := newTestClient(mock)

	signer, err := GenerateKeypair()
	require.NoError(t, err)

	result, err := client.EmptyWallet(context.Background(), signer, solana.SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, uint64(995_000), result.Lamports)

	transfers, _ := parseInstructions(mock.sent[0], mock.sent[0].Message.AccountKeys)
	require.Len(t, transfers, 1)
	assert.Equal(t, uint64(995_000), transfers[0].Amount)
}

func TestEmptyWallet_InsufficientFunds(t *testing.T) {
	mock := newMockRPC()
	mock.balance = 5000
	fee := uint64(5000)
	mock.fee = &fee
	client := newTestClient(mock)

	signer, err := GenerateKeypair()
	require.NoError(t, err)

	_, err = client.EmptyWallet(context.Background(), signer, solana.SystemProgramID)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Zero(t, mock.callCount("SendTransaction"))
}

func TestRequestAirdrop(t *testing.T) {
	mock := newMockRPC()
	client := newTestClient(mock)

	sig, err := client.RequestAirdrop(context.Background(), solana.SystemProgramID, 2*LamportsPerSOL)
	require.NoError(t, err)
	assert.False(t, sig.IsZero())
	assert.Equal(t, uint64(2*LamportsPerSOL), mock.airdropped)
}

func TestVersion(t *testing.T) {
	mock := newMockRPC()
	mock.version = "2.1.0"
	client := newTestClient(mock)

	v, err := client.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", v)
}

func TestGetTransaction_NotFound(t *testing.T) {
	mock := newMockRPC()
	client := newTestClient(mock)

	_, err := client.GetTransaction(context.Background(), solana.Signature{1})
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestGetTransaction_RPCError(t *testing.T) {
	mock := newMockRPC()
	mock.err = errors.New("503 service unavailable")
	client := newTestClient(mock)

	_, err := client.GetTransaction(context.Background(), solana.Signature{1})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
}
