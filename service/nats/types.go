package nats

import (
	"time"

	"github.com/brojonat/solapi/service/db"
)

// TransferEvent is published whenever a transfer submitted through the gateway
// changes status. Subject: "transfers.{from_address}".
type TransferEvent struct {
	Signature   string  `json:"signature"`
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	Lamports    uint64  `json:"lamports"`
	Memo        *string `json:"memo,omitempty"`

	Status string  `json:"status"` // submitted, confirmed, finalized or failed
	Error  *string `json:"error,omitempty"`
	Slot   uint64  `json:"slot,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published on.
func (e *TransferEvent) Subject() string {
	return SubjectPrefix + e.FromAddress
}

// FromDBTransfer converts a stored transfer into an event.
func FromDBTransfer(t *db.Transfer) *TransferEvent {
	return &TransferEvent{
		Signature:   t.Signature,
		FromAddress: t.FromAddress,
		ToAddress:   t.ToAddress,
		Lamports:    t.Lamports,
		Memo:        t.Memo,
		Status:      t.Status,
		Error:       t.Error,
		PublishedAt: time.Now().UTC(),
	}
}
