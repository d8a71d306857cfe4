// Package txcodec turns transactions into their signing pre-images and into the
// canonical raw bytes submitted with eth_sendRawTransaction.
package txcodec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction is implemented by every transaction shape the codec can sign.
// The unexported method keeps the set closed to this package.
type Transaction interface {
	// SigningHash is the digest handed to the signer.
	SigningHash() (common.Hash, error)

	envelope(sig Signature) ([]byte, error)
	clone() Transaction
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return common.CopyBytes(b)
}
