package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRecipient = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func TestRPCBalance(t *testing.T) {
	f := &fakeRPC{balance: 1_500_000_000}
	useFakeRPC(t, f)

	out, err := runCLI(t, "rpc", "balance", testRecipient)
	require.NoError(t, err)
	assert.Equal(t, "1.5 SOL (1500000000 lamports)\n", out)
}

func TestRPCBalance_InvalidAddress(t *testing.T) {
	f := &fakeRPC{}
	useFakeRPC(t, f)

	_, err := runCLI(t, "rpc", "balance", "bogus")
	require.Error(t, err)
	assert.Zero(t, f.calls)
}

func TestRPCVersion(t *testing.T) {
	useFakeRPC(t, &fakeRPC{version: "2.1.0"})

	out, err := runCLI(t, "--rpc-url", "https://api.devnet.solana.com", "--jq", ".", "rpc", "version")
	require.NoError(t, err)

	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "2.1.0", result["solana_core"])
	assert.Equal(t, "devnet", result["endpoint"])
}

func TestAirdrop(t *testing.T) {
	f := &fakeRPC{}
	useFakeRPC(t, f)

	out, err := runCLI(t, "--json", "rpc", "airdrop", "--amount", "2", testRecipient)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), f.airdropped)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Contains(t, result["explorer"], "?cluster=devnet")
}

func TestRPCTransfer(t *testing.T) {
	f := &fakeRPC{}
	useFakeRPC(t, f)
	key, path := writeKeypair(t)

	out, err := runCLI(t, "--json", "--explorer-cluster", "mainnet-beta",
		"rpc", "transfer", "--keypair", path, "--to", testRecipient, "--amount", "0.25", "--memo", "rent")
	require.NoError(t, err)

	require.Len(t, f.sent, 1)
	tx := f.sent[0]
	assert.Len(t, tx.Message.Instructions, 2)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, key.PublicKey().String(), result["from"])
	assert.Equal(t, testRecipient, result["to"])
	assert.Equal(t, float64(250_000_000), result["lamports"])
	assert.Equal(t, "finalized", result["status"])
	assert.Equal(t, tx.Signatures[0].String(), result["signature"])
	assert.NotContains(t, result["explorer"], "cluster=")
}

func TestRPCTransfer_BadAmount(t *testing.T) {
	f := &fakeRPC{}
	useFakeRPC(t, f)
	_, path := writeKeypair(t)

	_, err := runCLI(t, "rpc", "transfer", "--keypair", path, "--to", testRecipient, "--amount", "0")
	require.Error(t, err)
	assert.Zero(t, f.calls)
}

func TestSignVerify(t *testing.T) {
	key, path := writeKeypair(t)

	out, err := runCLI(t, "--json", "rpc", "sign-verify", "--keypair", path, "--message", "hello")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["verified"])
	assert.Equal(t, key.PublicKey().String(), result["public_key"])
}
