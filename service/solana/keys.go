package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// WalletKeySize is the length of a keypair in the Solana CLI byte-array format
// (32-byte seed followed by the 32-byte public key).
const WalletKeySize = 64

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// ParsePublicKey parses a base58 address. Off-curve addresses (PDAs) are accepted.
func ParsePublicKey(address string) (solana.PublicKey, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: address is required", ErrInvalidPublicKey)
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrInvalidPublicKey, address)
	}
	return pk, nil
}

// ParseSignature parses a base58 transaction signature.
func ParseSignature(signature string) (solana.Signature, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return solana.Signature{}, fmt.Errorf("%w: signature is required", ErrInvalidSignature)
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrInvalidSignature, signature)
	}
	return sig, nil
}

// ParsePrivateKey parses a base58 encoded 64-byte keypair and checks that its
// public half matches the key derived from its seed.
func ParsePrivateKey(encoded string) (solana.PrivateKey, error) {
	raw, err := base58.Decode(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base58", ErrInvalidPrivateKey)
	}
	return privateKeyFromBytes(raw)
}

// ParseWalletJSON parses a keypair in the Solana CLI format: a JSON array of 64 byte values.
func ParseWalletJSON(content []byte) (solana.PrivateKey, error) {
	var values []int
	if err := json.Unmarshal(bytes.TrimSpace(content), &values); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of bytes: %v", ErrInvalidPrivateKey, err)
	}
	raw := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: value %d at index %d is not a byte", ErrInvalidPrivateKey, v, i)
		}
		raw[i] = byte(v)
	}
	return privateKeyFromBytes(raw)
}

// WalletJSON renders a keypair in the Solana CLI byte-array format.
func WalletJSON(key solana.PrivateKey) string {
	parts := make([]string, len(key))
	for i, b := range key {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// WalletJSONToBase58 converts a CLI byte-array keypair to the base58 form used by browser wallets.
func WalletJSONToBase58(content []byte) (string, error) {
	key, err := ParseWalletJSON(content)
	if err != nil {
		return "", err
	}
	return base58.Encode(key), nil
}

// Base58ToWalletJSON converts a base58 keypair to the CLI byte-array format.
func Base58ToWalletJSON(encoded string) (string, error) {
	key, err := ParsePrivateKey(encoded)
	if err != nil {
		return "", err
	}
	return WalletJSON(key), nil
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return key, nil
}

// LoadKeypairFile reads a keypair written by solana-keygen or WriteKeypairFile.
func LoadKeypairFile(path string) (solana.PrivateKey, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}
	return ParseWalletJSON(content)
}

// WriteKeypairFile writes a keypair in the CLI byte-array format, readable only by the owner.
func WriteKeypairFile(path string, key solana.PrivateKey) error {
	if err := os.WriteFile(path, []byte(WalletJSON(key)), 0o600); err != nil {
		return fmt.Errorf("failed to write keypair file: %w", err)
	}
	return nil
}

// VerifyKeypair signs a message with key and verifies the signature against its public key.
func VerifyKeypair(key solana.PrivateKey, message []byte) (solana.Signature, bool, error) {
	sig, err := key.Sign(message)
	if err != nil {
		return solana.Signature{}, false, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, key.PublicKey().Verify(message, sig), nil
}

func privateKeyFromBytes(raw []byte) (solana.PrivateKey, error) {
	if len(raw) != WalletKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrivateKey, WalletKeySize, len(raw))
	}
	key := solana.PrivateKey(raw)
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	// PublicKey only copies the trailing half, so derive it from the seed.
	derived := ed25519.NewKeyFromSeed(raw[:32]).Public().(ed25519.PublicKey)
	if !bytes.Equal(raw[32:], derived) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidPrivateKey)
	}
	return key, nil
}
