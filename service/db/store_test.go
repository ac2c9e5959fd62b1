package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	bob   = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	carol = "7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV"
)

func TestCreateTransfer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("defaults to submitted", func(t *testing.T) {
		memo := "rent"
		tr, err := store.CreateTransfer(ctx, CreateTransferParams{
			Signature:   "sig-1",
			FromAddress: alice,
			ToAddress:   bob,
			Lamports:    1_500_000_000,
			Memo:        &memo,
		})
		require.NoError(t, err)

		assert.Equal(t, "sig-1", tr.Signature)
		assert.Equal(t, alice, tr.FromAddress)
		assert.Equal(t, bob, tr.ToAddress)
		assert.Equal(t, uint64(1_500_000_000), tr.Lamports)
		assert.Equal(t, StatusSubmitted, tr.Status)
		require.NotNil(t, tr.Memo)
		assert.Equal(t, memo, *tr.Memo)
		assert.Nil(t, tr.Error)
		assert.WithinDuration(t, time.Now(), tr.CreatedAt, 5*time.Second)
	})

	t.Run("duplicate signature", func(t *testing.T) {
		_, err := store.CreateTransfer(ctx, CreateTransferParams{
			Signature:   "sig-1",
			FromAddress: alice,
			ToAddress:   bob,
			Lamports:    1,
		})
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("zero lamports rejected", func(t *testing.T) {
		_, err := store.CreateTransfer(ctx, CreateTransferParams{
			Signature:   "sig-zero",
			FromAddress: alice,
			ToAddress:   bob,
		})
		assert.Error(t, err)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, err := store.CreateTransfer(ctx, CreateTransferParams{
			Signature:   "sig-bad",
			FromAddress: alice,
			ToAddress:   bob,
			Lamports:    1,
			Status:      "pending",
		})
		assert.Error(t, err)
	})
}

func TestUpdateTransferStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTransfer(ctx, CreateTransferParams{
		Signature:   "sig-2",
		FromAddress: alice,
		ToAddress:   bob,
		Lamports:    42,
	})
	require.NoError(t, err)

	tr, err := store.UpdateTransferStatus(ctx, "sig-2", StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, tr.Status)

	tr, err = store.UpdateTransferStatus(ctx, "sig-2", StatusFinalized, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, tr.Status)
	assert.True(t, !tr.UpdatedAt.Before(tr.CreatedAt))

	// Terminal statuses stick.
	tr, err = store.UpdateTransferStatus(ctx, "sig-2", StatusFailed, ptr("late failure"))
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, tr.Status)
	assert.Nil(t, tr.Error)

	_, err = store.UpdateTransferStatus(ctx, "missing", StatusConfirmed, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTransferStatus_Failed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTransfer(ctx, CreateTransferParams{
		Signature:   "sig-3",
		FromAddress: alice,
		ToAddress:   bob,
		Lamports:    42,
	})
	require.NoError(t, err)

	tr, err := store.UpdateTransferStatus(ctx, "sig-3", StatusFailed, ptr("InstructionError"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, tr.Status)
	require.NotNil(t, tr.Error)
	assert.Equal(t, "InstructionError", *tr.Error)
}

func TestGetTransfer_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTransfer(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTransfers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := []CreateTransferParams{
		{Signature: "a", FromAddress: alice, ToAddress: bob, Lamports: 1},
		{Signature: "b", FromAddress: bob, ToAddress: carol, Lamports: 2},
		{Signature: "c", FromAddress: carol, ToAddress: alice, Lamports: 3},
	}
	for _, p := range seed {
		_, err := store.CreateTransfer(ctx, p)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("all newest first", func(t *testing.T) {
		out, err := store.ListTransfers(ctx, ListTransfersParams{})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, "c", out[0].Signature)
		assert.Equal(t, "a", out[2].Signature)
	})

	t.Run("by address matches either side", func(t *testing.T) {
		out, err := store.ListTransfers(ctx, ListTransfersParams{Address: alice})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "c", out[0].Signature)
		assert.Equal(t, "a", out[1].Signature)
	})

	t.Run("pagination", func(t *testing.T) {
		out, err := store.ListTransfers(ctx, ListTransfersParams{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "b", out[0].Signature)
	})

	t.Run("no match is empty, not nil", func(t *testing.T) {
		out, err := store.ListTransfers(ctx, ListTransfersParams{Address: "unknown"})
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("pending", func(t *testing.T) {
		_, err := store.UpdateTransferStatus(ctx, "a", StatusFinalized, nil)
		require.NoError(t, err)

		out, err := store.ListPendingTransfers(ctx, 10)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "b", out[0].Signature)
	})
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusFinalized))
	assert.True(t, IsTerminal(StatusFailed))
	assert.False(t, IsTerminal(StatusSubmitted))
	assert.False(t, IsTerminal(StatusConfirmed))
}
