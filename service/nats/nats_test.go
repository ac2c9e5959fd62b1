package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solapi/service/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferEventSubject(t *testing.T) {
	e := &TransferEvent{FromAddress: "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"}
	assert.Equal(t, "transfers.4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T", e.Subject())
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "transfers.*", SubjectFor(""))
	assert.Equal(t, "transfers.abc", SubjectFor("abc"))
}

func TestFromDBTransfer(t *testing.T) {
	memo := "hello"
	errMsg := "InstructionError"
	rec := &db.Transfer{
		Signature:   "sig",
		FromAddress: "from",
		ToAddress:   "to",
		Lamports:    1000,
		Memo:        &memo,
		Status:      db.StatusFailed,
		Error:       &errMsg,
	}

	event := FromDBTransfer(rec)
	assert.Equal(t, "sig", event.Signature)
	assert.Equal(t, "from", event.FromAddress)
	assert.Equal(t, "to", event.ToAddress)
	assert.Equal(t, uint64(1000), event.Lamports)
	assert.Equal(t, db.StatusFailed, event.Status)
	assert.Equal(t, &memo, event.Memo)
	assert.Equal(t, &errMsg, event.Error)
	assert.WithinDuration(t, time.Now(), event.PublishedAt, time.Second)
}

func TestTransferEventJSON(t *testing.T) {
	event := &TransferEvent{
		Signature:   "sig",
		FromAddress: "from",
		ToAddress:   "to",
		Lamports:    5,
		Status:      "submitted",
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "memo")
	assert.NotContains(t, fields, "error")
	assert.NotContains(t, fields, "slot")
	assert.Equal(t, "submitted", fields["status"])
}

func TestMockPublisher(t *testing.T) {
	ctx := context.Background()
	m := NewMockPublisher()

	require.NoError(t, m.PublishTransfer(ctx, &TransferEvent{Signature: "a", FromAddress: "x"}))
	require.NoError(t, m.PublishTransfer(ctx, &TransferEvent{Signature: "b", FromAddress: "y"}))

	assert.Len(t, m.GetPublishedEvents(), 2)
	assert.Len(t, m.GetPublishedEventsForSender("x"), 1)

	m.SetPublishError(errors.New("down"))
	assert.Error(t, m.PublishTransfer(ctx, &TransferEvent{Signature: "c"}))
	assert.Len(t, m.GetPublishedEvents(), 2)

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
