package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the eth_getTransactionReceipt result.
type Receipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []types.Log     `json:"logs"`
	Status            hexutil.Uint64  `json:"status"`
	Type              hexutil.Uint64  `json:"type"`
}

// UnmarshalJSON rejects objects missing the fields every receipt carries.
func (r *Receipt) UnmarshalJSON(input []byte) error {
	type receipt Receipt
	var dec struct {
		receipt
		TransactionHash *common.Hash    `json:"transactionHash"`
		BlockHash       *common.Hash    `json:"blockHash"`
		BlockNumber     *hexutil.Big    `json:"blockNumber"`
		Status          *hexutil.Uint64 `json:"status"`
	}
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	switch {
	case dec.TransactionHash == nil:
		return missingField("transactionHash", "Receipt")
	case dec.BlockHash == nil:
		return missingField("blockHash", "Receipt")
	case dec.BlockNumber == nil:
		return missingField("blockNumber", "Receipt")
	case dec.Status == nil:
		return missingField("status", "Receipt")
	}
	*r = Receipt(dec.receipt)
	r.TransactionHash = *dec.TransactionHash
	r.BlockHash = *dec.BlockHash
	r.BlockNumber = dec.BlockNumber
	r.Status = *dec.Status
	return nil
}

// Succeeded reports whether the execution status is 1.
func (r *Receipt) Succeeded() bool {
	return uint64(r.Status) == types.ReceiptStatusSuccessful
}

// Transaction is the eth_getTransactionByHash result. Block fields are nil
// while the transaction is pending.
type Transaction struct {
	Hash             common.Hash     `json:"hash"`
	Type             hexutil.Uint64  `json:"type"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Value            *hexutil.Big    `json:"value"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Input            hexutil.Bytes   `json:"input"`
}

// UnmarshalJSON rejects objects without hash, nonce or sender.
func (t *Transaction) UnmarshalJSON(input []byte) error {
	type transaction Transaction
	var dec struct {
		transaction
		Hash  *common.Hash    `json:"hash"`
		Nonce *hexutil.Uint64 `json:"nonce"`
		From  *common.Address `json:"from"`
	}
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	switch {
	case dec.Hash == nil:
		return missingField("hash", "Transaction")
	case dec.Nonce == nil:
		return missingField("nonce", "Transaction")
	case dec.From == nil:
		return missingField("from", "Transaction")
	}
	*t = Transaction(dec.transaction)
	t.Hash = *dec.Hash
	t.Nonce = *dec.Nonce
	t.From = *dec.From
	return nil
}

// IsPending reports whether the transaction is not yet in a block.
func (t *Transaction) IsPending() bool {
	return t.BlockNumber == nil
}

// BlockInfo is the header part of eth_getBlockByNumber with hydration off.
type BlockInfo struct {
	Number       *hexutil.Big   `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	GasLimit     hexutil.Uint64 `json:"gasLimit"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	Miner        common.Address `json:"miner"`
	LogsBloom    types.Bloom    `json:"logsBloom"`
	Transactions []common.Hash  `json:"transactions"`
}

func missingField(field, typ string) error {
	return fmt.Errorf("missing required field '%s' for %s", field, typ)
}

// EstimateRequest describes the call whose gas is estimated. A nil or zero
// Value is left out of the request.
type EstimateRequest struct {
	From  *common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

type estimateArg struct {
	From  *common.Address `json:"from,omitempty"`
	To    common.Address  `json:"to"`
	Value *string         `json:"value,omitempty"`
	Data  *string         `json:"data,omitempty"`
}

func (r EstimateRequest) toArg() estimateArg {
	arg := estimateArg{From: r.From, To: r.To}
	if r.Value != nil && r.Value.Sign() > 0 {
		v := NormalizeQuantity(EncodeQuantity(r.Value))
		arg.Value = &v
	}
	if r.Data != nil {
		d := hexutil.Encode(r.Data)
		arg.Data = &d
	}
	return arg
}
