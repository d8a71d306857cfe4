package rpc

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/84hero/evm-txclient/pkg/signer"
	"github.com/84hero/evm-txclient/pkg/txcodec"
)

var errUnknownChainID = errors.New("chain id not set and network unknown")

// SendTypedTransaction stamps the pending nonce of from onto tx, signs its
// EIP-712 digest and submits the 0x71 envelope. Concurrent sends on one
// Client are serialized so no two share a nonce.
func (c *Client) SendTypedTransaction(ctx context.Context, tx txcodec.TypedTransaction, from common.Address, s signer.Signer) (common.Hash, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.GetTransactionCount(ctx, from, Pending)
	if err != nil {
		return common.Hash{}, err
	}
	return c.signAndSubmit(ctx, tx.WithNonce(nonce), s)
}

// SendLegacyTransaction is SendTypedTransaction for legacy transactions. A
// missing chain id is taken from the client network; if that is unknown the
// send fails with ErrEncodeIssue.
func (c *Client) SendLegacyTransaction(ctx context.Context, tx txcodec.LegacyTransaction, from common.Address, s signer.Signer) (common.Hash, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.GetTransactionCount(ctx, from, Pending)
	if err != nil {
		return common.Hash{}, err
	}
	tx = tx.WithNonce(nonce)
	if tx.ChainID == nil {
		id, ok := c.Network().ChainID()
		if !ok {
			return common.Hash{}, newError(KindEncodeIssue, errUnknownChainID)
		}
		tx = tx.WithChainID(id)
	}
	return c.signAndSubmit(ctx, tx, s)
}

// signAndSubmit must be called with sendMu held.
func (c *Client) signAndSubmit(ctx context.Context, tx txcodec.Transaction, s signer.Signer) (common.Hash, error) {
	signed, err := txcodec.Sign(tx, s)
	if err != nil {
		return common.Hash{}, newError(KindEncodeIssue, err)
	}
	raw, err := signed.Raw()
	if err != nil {
		return common.Hash{}, newError(KindEncodeIssue, err)
	}
	return c.SendRawTransaction(ctx, raw)
}
