package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/84hero/evm-txclient/pkg/chain"
)

// Client issues typed JSON-RPC calls over a Transport. Every operation sends
// exactly one request and returns either a decoded value or a *ClientError.
type Client struct {
	transport Transport

	netMu      sync.RWMutex
	network    chain.Network
	networkSet bool

	// sendMu serializes nonce fetch, signing and submission.
	sendMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithNetwork pins the network and skips the net_version lookup.
func WithNetwork(n chain.Network) Option {
	return func(c *Client) {
		c.network = n
		c.networkSet = true
	}
}

// NewClient creates a client. Unless WithNetwork is given, it resolves the
// network once via net_version; a failure only logs a warning and leaves the
// network Unknown.
func NewClient(ctx context.Context, t Transport, opts ...Option) *Client {
	c := &Client{transport: t}
	for _, opt := range opts {
		opt(c)
	}
	if !c.networkSet {
		c.RefreshNetwork(ctx)
	}
	return c
}

// Network returns the cached network identity.
func (c *Client) Network() chain.Network {
	c.netMu.RLock()
	defer c.netMu.RUnlock()
	return c.network
}

// RefreshNetwork re-resolves the network once. On failure the previous value
// is kept and a warning is logged.
func (c *Client) RefreshNetwork(ctx context.Context) chain.Network {
	n, err := c.NetVersion(ctx)
	c.netMu.Lock()
	defer c.netMu.Unlock()
	if err != nil {
		log.Warn("Could not resolve network, chain id must be set per transaction", "err", err)
		return c.network
	}
	c.network = n
	return n
}

// Close closes the underlying transport.
func (c *Client) Close() {
	c.transport.Close()
}

// Call sends an arbitrary method and returns the raw result with errors
// mapped onto the client taxonomy.
func (c *Client) Call(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.transport.CallContext(ctx, &raw, method, args...); err != nil {
		return nil, classify(err)
	}
	return raw, nil
}

// NetVersion calls net_version.
func (c *Client) NetVersion(ctx context.Context) (chain.Network, error) {
	raw, err := c.Call(ctx, "net_version")
	if err != nil {
		return chain.Unknown, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return chain.Unknown, err
	}
	n, err := chain.ParseNetwork(s)
	if err != nil {
		return chain.Unknown, newError(KindDecodeIssue, err)
	}
	return n, nil
}

// GasPrice calls eth_gasPrice.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.quantity(ctx, "eth_gasPrice")
}

// BlockNumber calls eth_blockNumber.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.uint64Quantity(ctx, "eth_blockNumber")
}

// GetBalance calls eth_getBalance.
func (c *Client) GetBalance(ctx context.Context, addr common.Address, block BlockTag) (*big.Int, error) {
	return c.quantity(ctx, "eth_getBalance", addr, block)
}

// GetCode calls eth_getCode. An account without code yields an empty slice.
func (c *Client) GetCode(ctx context.Context, addr common.Address, block BlockTag) ([]byte, error) {
	raw, err := c.Call(ctx, "eth_getCode", addr, block)
	if err != nil {
		return nil, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	code, err := hexutil.Decode(s)
	if err != nil {
		return nil, newError(KindDecodeIssue, err)
	}
	return code, nil
}

// EstimateGas calls eth_estimateGas. A zero value is left out of the request
// entirely because some nodes reject an explicit zero.
func (c *Client) EstimateGas(ctx context.Context, req EstimateRequest) (*big.Int, error) {
	return c.quantity(ctx, "eth_estimateGas", req.toArg())
}

// GetTransactionCount calls eth_getTransactionCount.
func (c *Client) GetTransactionCount(ctx context.Context, addr common.Address, block BlockTag) (uint64, error) {
	return c.uint64Quantity(ctx, "eth_getTransactionCount", addr, block)
}

// GetTransactionByHash calls eth_getTransactionByHash. An unknown hash yields
// ErrNoResultFound.
func (c *Client) GetTransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	tx := new(Transaction)
	if err := c.record(ctx, tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetTransactionReceipt calls eth_getTransactionReceipt. A transaction that
// is unknown or not yet mined yields ErrNoResultFound; a malformed receipt
// yields ErrUnexpectedReturnValue.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	r := new(Receipt)
	if err := c.record(ctx, r, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return r, nil
}

// GetBlockByNumber calls eth_getBlockByNumber without transaction bodies.
func (c *Client) GetBlockByNumber(ctx context.Context, block BlockTag) (*BlockInfo, error) {
	b := new(BlockInfo)
	if err := c.record(ctx, b, "eth_getBlockByNumber", block, false); err != nil {
		return nil, err
	}
	return b, nil
}

// FetchLogs sends a single eth_getLogs for [from, to]. A provider result cap
// surfaces as ErrTooManyResults; use a Collector to split the range instead.
func (c *Client) FetchLogs(ctx context.Context, filter LogFilter, from, to BlockTag) ([]types.Log, error) {
	raw, err := c.Call(ctx, "eth_getLogs", filter.toArg(from, to))
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return []types.Log{}, nil
	}
	var logs []types.Log
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, newError(KindUnexpectedReturnValue, err)
	}
	return logs, nil
}

// SendRawTransaction submits signed bytes and returns the transaction hash.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	res, err := c.Call(ctx, "eth_sendRawTransaction", hexutil.Encode(raw))
	if err != nil {
		return common.Hash{}, err
	}
	s, err := decodeString(res)
	if err != nil {
		return common.Hash{}, err
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, newError(KindDecodeIssue, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, newError(KindDecodeIssue, fmt.Errorf("hash has %d bytes", len(b)))
	}
	return common.BytesToHash(b), nil
}

func (c *Client) quantity(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	raw, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	s, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	v, err := ParseQuantity(s)
	if err != nil {
		return nil, newError(KindDecodeIssue, err)
	}
	return v, nil
}

func (c *Client) uint64Quantity(ctx context.Context, method string, args ...interface{}) (uint64, error) {
	v, err := c.quantity(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, newError(KindDecodeIssue, fmt.Errorf("%s result %s overflows uint64", method, v))
	}
	return v.Uint64(), nil
}

// record decodes an object result. null, or a missing result, is
// ErrNoResultFound.
func (c *Client) record(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	var raw json.RawMessage
	err := c.transport.CallContext(ctx, &raw, method, args...)
	if errors.Is(err, gethrpc.ErrNoResult) {
		return newError(KindNoResultFound, nil)
	}
	if err != nil {
		return classify(err)
	}
	if isNull(raw) {
		return newError(KindNoResultFound, nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(KindUnexpectedReturnValue, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeString expects a JSON string; anything else is the wrong shape.
func decodeString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", newError(KindUnexpectedReturnValue, errors.New("null result"))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", newError(KindUnexpectedReturnValue, err)
	}
	return s, nil
}
