// Package signer holds the signing capability used when submitting transactions.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces a 65-byte [R || S || V] signature over a 32-byte digest.
// Key material never leaves the implementation.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
}

// ErrInvalidDigest is returned when the message is not a 32-byte digest.
var ErrInvalidDigest = errors.New("digest must be 32 bytes")

// KeySigner signs with an in-memory secp256k1 private key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner wraps an existing private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeySignerFromHex parses a hex private key, with or without 0x prefix.
func NewKeySignerFromHex(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeySigner(key), nil
}

// Address returns the account controlled by the key.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// Sign implements Signer. V is returned as the recovery id (0 or 1).
func (s *KeySigner) Sign(digest []byte) ([]byte, error) {
	if len(digest) != crypto.DigestLength {
		return nil, ErrInvalidDigest
	}
	return crypto.Sign(digest, s.key)
}
