package solana

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

// Well-known program IDs not exported by solana-go.
var (
	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramTransferInstruction        = uint8(3)
	TokenProgramTransferCheckedInstruction = uint8(12)
)

// Program labels used in TransferInstruction.Program.
const (
	ProgramSystem    = "system"
	ProgramToken     = "spl-token"
	ProgramToken2022 = "spl-token-2022"
)

// parseInstructions walks a transaction's top-level instructions and returns the
// transfers and memo it carries. accountKeys must include loaded lookup-table
// addresses so that instruction indices resolve.
func parseInstructions(tx *solana.Transaction, accountKeys solana.PublicKeySlice) ([]TransferInstruction, *string) {
	var transfers []TransferInstruction
	var memo *string

	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			continue
		}
		programID := accountKeys[instruction.ProgramIDIndex]

		switch {
		case programID.Equals(solana.SystemProgramID):
			if t, err := parseSystemTransfer(instruction, accountKeys); err == nil {
				transfers = append(transfers, t)
			}

		case programID.Equals(solana.TokenProgramID):
			if t, err := parseTokenTransfer(instruction, accountKeys); err == nil {
				t.Program = ProgramToken
				transfers = append(transfers, t)
			}

		case programID.Equals(solana.Token2022ProgramID):
			if t, err := parseTokenTransfer(instruction, accountKeys); err == nil {
				t.Program = ProgramToken2022
				transfers = append(transfers, t)
			}

		case programID.Equals(solana.MemoProgramID) || programID.Equals(MemoProgramIDLegacy):
			if m, ok := parseMemo(instruction.Data); ok {
				memo = &m
			}
		}
	}

	return transfers, memo
}

// parseSystemTransfer decodes a System Program Transfer instruction.
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys solana.PublicKeySlice) (TransferInstruction, error) {
	// [0..4]  = instruction type (u32, 2 = Transfer)
	// [4..12] = lamports (u64)
	if len(instruction.Data) < 12 {
		return TransferInstruction{}, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return TransferInstruction{}, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	// Accounts: [from, to]
	from, err := accountAt(instruction, accountKeys, 0)
	if err != nil {
		return TransferInstruction{}, err
	}
	to, err := accountAt(instruction, accountKeys, 1)
	if err != nil {
		return TransferInstruction{}, err
	}

	return TransferInstruction{
		Program:     ProgramSystem,
		Source:      from.String(),
		Destination: to.String(),
		Authority:   from.String(),
		Amount:      binary.LittleEndian.Uint64(instruction.Data[4:12]),
	}, nil
}

// parseTokenTransfer decodes SPL Token Transfer and TransferChecked instructions.
// Source and destination are token accounts, not wallet owners.
func parseTokenTransfer(instruction solana.CompiledInstruction, accountKeys solana.PublicKeySlice) (TransferInstruction, error) {
	if len(instruction.Data) == 0 {
		return TransferInstruction{}, fmt.Errorf("empty instruction data")
	}

	switch instruction.Data[0] {
	case TokenProgramTransferInstruction:
		// [0] = type, [1..9] = amount (u64)
		// Accounts: [source, destination, authority]
		if len(instruction.Data) < 9 {
			return TransferInstruction{}, fmt.Errorf("transfer instruction data too short")
		}
		keys, err := accountsAt(instruction, accountKeys, 3)
		if err != nil {
			return TransferInstruction{}, err
		}
		return TransferInstruction{
			Source:      keys[0].String(),
			Destination: keys[1].String(),
			Authority:   keys[2].String(),
			Amount:      binary.LittleEndian.Uint64(instruction.Data[1:9]),
		}, nil

	case TokenProgramTransferCheckedInstruction:
		// [0] = type, [1..9] = amount (u64), [9] = decimals
		// Accounts: [source, mint, destination, authority]
		if len(instruction.Data) < 10 {
			return TransferInstruction{}, fmt.Errorf("transferChecked instruction data too short")
		}
		keys, err := accountsAt(instruction, accountKeys, 4)
		if err != nil {
			return TransferInstruction{}, err
		}
		mint := keys[1].String()
		decimals := instruction.Data[9]
		return TransferInstruction{
			Source:      keys[0].String(),
			Destination: keys[2].String(),
			Authority:   keys[3].String(),
			Mint:        &mint,
			Amount:      binary.LittleEndian.Uint64(instruction.Data[1:9]),
			Decimals:    &decimals,
		}, nil

	default:
		return TransferInstruction{}, fmt.Errorf("unknown token instruction type: %d", instruction.Data[0])
	}
}

func accountAt(instruction solana.CompiledInstruction, accountKeys solana.PublicKeySlice, pos int) (solana.PublicKey, error) {
	if pos >= len(instruction.Accounts) {
		return solana.PublicKey{}, fmt.Errorf("instruction has no account at position %d", pos)
	}
	idx := int(instruction.Accounts[pos])
	if idx >= len(accountKeys) {
		return solana.PublicKey{}, fmt.Errorf("account index %d out of bounds", idx)
	}
	return accountKeys[idx], nil
}

func accountsAt(instruction solana.CompiledInstruction, accountKeys solana.PublicKeySlice, n int) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, n)
	for i := range n {
		key, err := accountAt(instruction, accountKeys, i)
		if err != nil {
			return nil, err
		}
		out[i] = key
	}
	return out, nil
}

// parseMemo returns memo instruction data as text. The memo program only
// accepts UTF-8, so anything else is ignored.
func parseMemo(data []byte) (string, bool) {
	if len(data) == 0 || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// memoInstruction builds a memo instruction signed by signer.
func memoInstruction(memo string, signer solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(signer).SIGNER()},
		[]byte(memo),
	)
}
