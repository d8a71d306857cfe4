package txcodec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// LegacyTransaction is a pre-EIP-2718 transaction. Nonce and ChainID may be
// left nil by the caller; the submitter fills them right before signing.
type LegacyTransaction struct {
	To       *common.Address // nil for contract creation
	Value    *big.Int
	Data     []byte
	ChainID  *big.Int
	Nonce    *uint64
	GasPrice *big.Int
	GasLimit *big.Int
}

// WithNonce returns a copy of the transaction carrying the given nonce.
func (tx LegacyTransaction) WithNonce(nonce uint64) LegacyTransaction {
	tx.Nonce = &nonce
	return tx
}

// WithChainID returns a copy of the transaction bound to the given chain.
func (tx LegacyTransaction) WithChainID(id *big.Int) LegacyTransaction {
	tx.ChainID = copyBig(id)
	return tx
}

func (tx LegacyTransaction) nonce() uint64 {
	if tx.Nonce == nil {
		return 0
	}
	return *tx.Nonce
}

func (tx LegacyTransaction) to() []byte {
	if tx.To == nil {
		return []byte{}
	}
	return tx.To.Bytes()
}

func (tx LegacyTransaction) fields() []interface{} {
	return []interface{}{
		tx.nonce(),
		bigOrZero(tx.GasPrice),
		bigOrZero(tx.GasLimit),
		tx.to(),
		bigOrZero(tx.Value),
		copyBytes(tx.Data),
	}
}

// SigningHash returns keccak256 of the RLP pre-image. With a chain id the
// EIP-155 form [..., chainId, 0, 0] is used.
func (tx LegacyTransaction) SigningHash() (common.Hash, error) {
	fields := tx.fields()
	if tx.ChainID != nil {
		fields = append(fields, tx.ChainID, uint(0), uint(0))
	}
	enc, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// v derives the replay-protected V value (EIP-155) or the plain 27/28 form.
func (tx LegacyTransaction) v(sig Signature) *big.Int {
	v := new(big.Int).SetUint64(uint64(sig.RecoveryParam()))
	if tx.ChainID == nil {
		return v.Add(v, big.NewInt(27))
	}
	v.Add(v, big.NewInt(35))
	return v.Add(v, new(big.Int).Mul(tx.ChainID, big.NewInt(2)))
}

func (tx LegacyTransaction) envelope(sig Signature) ([]byte, error) {
	fields := append(tx.fields(),
		tx.v(sig),
		new(big.Int).SetBytes(sig.R[:]),
		new(big.Int).SetBytes(sig.S[:]),
	)
	return rlp.EncodeToBytes(fields)
}

func (tx LegacyTransaction) clone() Transaction {
	cp := tx
	if tx.To != nil {
		to := *tx.To
		cp.To = &to
	}
	if tx.Nonce != nil {
		n := *tx.Nonce
		cp.Nonce = &n
	}
	cp.Value = copyBig(tx.Value)
	cp.Data = copyBytes(tx.Data)
	cp.ChainID = copyBig(tx.ChainID)
	cp.GasPrice = copyBig(tx.GasPrice)
	cp.GasLimit = copyBig(tx.GasLimit)
	return cp
}
