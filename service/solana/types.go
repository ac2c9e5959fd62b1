package solana

import (
	"github.com/gagliardetto/solana-go"
)

// Account is the subset of on-chain account state exposed by the gateway.
type Account struct {
	Address    solana.PublicKey
	Lamports   uint64
	Owner      solana.PublicKey
	Executable bool
	RentEpoch  uint64
	Space      uint64
}

// TransactionInfo is a fetched transaction reduced to what callers display.
// This is our domain model, independent of the RPC response format.
type TransactionInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64  // nil when the node has no block time
	Success   bool    // false when meta is missing or reports an error
	Fee       *uint64 // nil when meta is missing
	Err       *string // on-chain error, nil on success
	Accounts  []string
	Transfers []TransferInstruction
	Memo      *string
}

// TransferInstruction is a decoded native or SPL token transfer.
type TransferInstruction struct {
	Program     string  `json:"program"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Authority   string  `json:"authority,omitempty"`
	Mint        *string `json:"mint,omitempty"`
	Amount      uint64  `json:"amount"`
	Decimals    *uint8  `json:"decimals,omitempty"`
}

// SignatureStatus is the cluster's view of a submitted transaction.
type SignatureStatus struct {
	Slot          uint64
	Confirmations *uint64
	Status        string  // processed, confirmed or finalized
	Err           *string // nil if the transaction succeeded
}

// TransferParams describes a native SOL transfer signed by Signer.
type TransferParams struct {
	Signer   solana.PrivateKey
	To       solana.PublicKey
	Lamports uint64
	Memo     string
}

// TransferResult is returned once a transfer has been submitted.
type TransferResult struct {
	Signature solana.Signature
	From      solana.PublicKey
	To        solana.PublicKey
	Lamports  uint64
	Status    *SignatureStatus // nil if confirmation was not reached
}
