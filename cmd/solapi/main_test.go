package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brojonat/solapi/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// runCLI runs the app with args and returns what it printed to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() { stdout = prev }()

	err := newApp().Run(append([]string{"solapi"}, args...))
	return buf.String(), err
}

func writeKeypair(t *testing.T) (solanago.PrivateKey, string) {
	t.Helper()
	key, err := solana.GenerateKeypair()
	require.NoError(t, err)
	path := t.TempDir() + "/id.json"
	require.NoError(t, solana.WriteKeypairFile(path, key))
	return key, path
}

var errFakeRPC = errors.New("not supported by fake")

// fakeRPC is a solana.RPCClient that confirms every transaction at finalized.
type fakeRPC struct {
	mu sync.Mutex

	balance    uint64
	version    string
	sent       []*solanago.Transaction
	airdropped uint64
	calls      int
}

func useFakeRPC(t *testing.T, f *fakeRPC) {
	t.Helper()
	prev := newRPCClient
	newRPCClient = func(string) solana.RPCClient { return f }
	t.Cleanup(func() { newRPCClient = prev })
}

func (f *fakeRPC) hit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeRPC) GetBalance(context.Context, solanago.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	f.hit()
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeRPC) GetAccountInfo(context.Context, solanago.PublicKey, *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	f.hit()
	return nil, rpc.ErrNotFound
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.hit()
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: solanago.Hash{7}, LastValidBlockHeight: 100},
	}, nil
}

func (f *fakeRPC) SendTransaction(_ context.Context, tx *solanago.Transaction, _ rpc.TransactionOpts) (solanago.Signature, error) {
	f.hit()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(context.Context, bool, ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.hit()
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusFinalized}},
	}, nil
}

func (f *fakeRPC) GetTransaction(context.Context, solanago.Signature, *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.hit()
	return nil, rpc.ErrNotFound
}

func (f *fakeRPC) RequestAirdrop(_ context.Context, _ solanago.PublicKey, lamports uint64, _ rpc.CommitmentType) (solanago.Signature, error) {
	f.hit()
	f.airdropped = lamports
	return solanago.Signature{9}, nil
}

func (f *fakeRPC) GetFeeForMessage(context.Context, string, rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
	f.hit()
	return nil, errFakeRPC
}

func (f *fakeRPC) GetVersion(context.Context) (*rpc.GetVersionResult, error) {
	f.hit()
	return &rpc.GetVersionResult{SolanaCore: f.version}, nil
}
