package solana

import (
	"errors"
	"fmt"
	"math"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// MaxTokenDecimals is the largest decimals value whose scale factor fits in a uint64.
const MaxTokenDecimals = 19

// ErrInvalidAmount is returned when an amount cannot be represented on chain.
var ErrInvalidAmount = errors.New("invalid amount")

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// SOLToLamports converts a positive SOL amount to lamports, rounding to the
// nearest lamport. Amounts that round to zero or overflow uint64 are rejected.
func SOLToLamports(sol float64) (uint64, error) {
	if math.IsNaN(sol) || math.IsInf(sol, 0) {
		return 0, fmt.Errorf("%w: amount must be a finite number", ErrInvalidAmount)
	}
	if sol <= 0 {
		return 0, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}
	lamports := math.Round(sol * LamportsPerSOL)
	if lamports < 1 {
		return 0, fmt.Errorf("%w: amount %v SOL is less than one lamport", ErrInvalidAmount, sol)
	}
	if lamports >= math.MaxUint64 {
		return 0, fmt.Errorf("%w: amount %v SOL overflows lamports", ErrInvalidAmount, sol)
	}
	return uint64(lamports), nil
}

// ToRawAmount converts a human-readable token amount to raw base units for a
// mint with the given decimals (e.g. 1.5 with 6 decimals is 1_500_000).
func ToRawAmount(amount float64, decimals uint8) (uint64, error) {
	if decimals > MaxTokenDecimals {
		return 0, fmt.Errorf("%w: decimals %d exceeds %d", ErrInvalidAmount, decimals, MaxTokenDecimals)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: amount must be a finite number", ErrInvalidAmount)
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: amount cannot be negative", ErrInvalidAmount)
	}
	raw := math.Round(amount * math.Pow10(int(decimals)))
	if raw >= math.MaxUint64 {
		return 0, fmt.Errorf("%w: amount %v overflows raw units", ErrInvalidAmount, amount)
	}
	return uint64(raw), nil
}

// ToHumanAmount converts raw token base units to a human-readable amount.
func ToHumanAmount(raw uint64, decimals uint8) float64 {
	return float64(raw) / math.Pow10(int(decimals))
}
