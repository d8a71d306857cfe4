package txcodec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712TxType is the zkSync EIP-712 transaction type byte.
const EIP712TxType byte = 0x71

const (
	eip712DomainName    = "zkSync"
	eip712DomainVersion = "2"
	eip712PrimaryType   = "Transaction"
)

// eip712Types lists the domain and transaction schemas. Field order is part of
// the type hash and must not change.
var eip712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	eip712PrimaryType: {
		{Name: "txType", Type: "uint8"},
		{Name: "to", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "feeToken", Type: "uint256"},
		{Name: "ergsLimit", Type: "uint256"},
		{Name: "ergsPerPubdataByteLimit", Type: "uint256"},
		{Name: "ergsPrice", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// TypedTransaction is a zkSync EIP-712 (type 0x71) transaction. Nonce and
// ChainID are always concrete for this shape.
type TypedTransaction struct {
	To            common.Address
	Value         *big.Int
	Data          []byte
	ChainID       uint64
	Nonce         uint64
	GasPrice      *big.Int
	GasLimit      *big.Int
	GasPerPubdata *big.Int
	FeeToken      common.Address // zero address means the native token
}

// WithNonce returns a copy of the transaction carrying the given nonce.
func (tx TypedTransaction) WithNonce(nonce uint64) TypedTransaction {
	tx.Nonce = nonce
	return tx
}

// TxType returns the constant type byte.
func (tx TypedTransaction) TxType() byte {
	return EIP712TxType
}

// TypedData builds the structured value that gets hashed and signed. Addresses
// are reinterpreted as uint256.
func (tx TypedTransaction) TypedData() apitypes.TypedData {
	chainID := (*math.HexOrDecimal256)(new(big.Int).SetUint64(tx.ChainID))
	return apitypes.TypedData{
		Types:       eip712Types,
		PrimaryType: eip712PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    eip712DomainName,
			Version: eip712DomainVersion,
			ChainId: chainID,
		},
		Message: apitypes.TypedDataMessage{
			"txType":                  new(big.Int).SetUint64(uint64(EIP712TxType)),
			"to":                      new(big.Int).SetBytes(tx.To.Bytes()),
			"value":                   new(big.Int).Set(bigOrZero(tx.Value)),
			"data":                    copyBytes(tx.Data),
			"feeToken":                new(big.Int).SetBytes(tx.FeeToken.Bytes()),
			"ergsLimit":               new(big.Int).Set(bigOrZero(tx.GasLimit)),
			"ergsPerPubdataByteLimit": new(big.Int).Set(bigOrZero(tx.GasPerPubdata)),
			"ergsPrice":               new(big.Int).Set(bigOrZero(tx.GasPrice)),
			"nonce":                   new(big.Int).SetUint64(tx.Nonce),
		},
	}
}

// SigningHash returns the EIP-712 digest keccak256(0x1901 || domainSeparator || hashStruct(tx)).
func (tx TypedTransaction) SigningHash() (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(tx.TypedData())
	if err != nil {
		return common.Hash{}, fmt.Errorf("eip712 hash: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// envelope produces 0x71 || rlp(fields). The type byte sits outside the RLP list.
// The two trailing empty lists are factory deps and account-abstraction params,
// neither of which is supported.
func (tx TypedTransaction) envelope(sig Signature) ([]byte, error) {
	fields := []interface{}{
		tx.Nonce,
		bigOrZero(tx.GasPrice),
		bigOrZero(tx.GasLimit),
		tx.To,
		bigOrZero(tx.Value),
		copyBytes(tx.Data),
		sig.RecoveryParam(),
		sig.R[:],
		sig.S[:],
		tx.ChainID,
		tx.FeeToken,
		bigOrZero(tx.GasPerPubdata),
		[]interface{}{},
		[]interface{}{},
	}
	enc, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, err
	}
	return append([]byte{EIP712TxType}, enc...), nil
}

func (tx TypedTransaction) clone() Transaction {
	cp := tx
	cp.Value = copyBig(tx.Value)
	cp.Data = copyBytes(tx.Data)
	cp.GasPrice = copyBig(tx.GasPrice)
	cp.GasLimit = copyBig(tx.GasLimit)
	cp.GasPerPubdata = copyBig(tx.GasPerPubdata)
	return cp
}
