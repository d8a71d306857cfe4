package txcodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/84hero/evm-txclient/pkg/signer"
)

// ErrNilTransaction is returned when a signed transaction is built without a transaction.
var ErrNilTransaction = errors.New("nil transaction")

// SignedTransaction pairs a transaction with its signature. It never changes
// after construction; Raw and Hash are derived once and cached.
type SignedTransaction struct {
	tx  Transaction
	sig Signature

	once sync.Once
	raw  []byte
	hash common.Hash
	err  error
}

// NewSignedTransaction affixes a raw 65-byte signature to a copy of tx.
func NewSignedTransaction(tx Transaction, rawSig []byte) (*SignedTransaction, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	sig, err := SignatureFromBytes(rawSig)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{tx: tx.clone(), sig: sig}, nil
}

// Sign hashes tx, asks s for a signature over the digest and affixes it.
func Sign(tx Transaction, s signer.Signer) (*SignedTransaction, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	digest, err := tx.SigningHash()
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(digest.Bytes())
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return NewSignedTransaction(tx, sig)
}

// Transaction returns a copy of the signed transaction.
func (st *SignedTransaction) Transaction() Transaction {
	return st.tx.clone()
}

// Signature returns the affixed signature.
func (st *SignedTransaction) Signature() Signature {
	return st.sig
}

func (st *SignedTransaction) encode() {
	st.once.Do(func() {
		st.raw, st.err = st.tx.envelope(st.sig)
		if st.err == nil {
			st.hash = crypto.Keccak256Hash(st.raw)
		}
	})
}

// Raw returns the canonical bytes submitted via eth_sendRawTransaction.
func (st *SignedTransaction) Raw() ([]byte, error) {
	st.encode()
	if st.err != nil {
		return nil, st.err
	}
	return common.CopyBytes(st.raw), nil
}

// Hash returns keccak256(Raw()).
func (st *SignedTransaction) Hash() (common.Hash, error) {
	st.encode()
	return st.hash, st.err
}
