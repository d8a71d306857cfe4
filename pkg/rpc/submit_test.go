package rpc

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/84hero/evm-txclient/pkg/chain"
	"github.com/84hero/evm-txclient/pkg/signer"
	"github.com/84hero/evm-txclient/pkg/txcodec"
)

const testKey = "0xf707ce8805f09a68294b4efdfad686629b31a5128670ef0e502c8c396181f1cb"

// account simulates the pending nonce of one sender: every accepted raw
// transaction bumps it.
type account struct {
	mu      sync.Mutex
	pending uint64
	nonces  []uint64
	raws    [][]byte
	decode  func(raw []byte) (uint64, error)
}

func (a *account) install(ft *fakeTransport) {
	ft.on("eth_getTransactionCount", func([]interface{}) (interface{}, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return hexutil.EncodeUint64(a.pending), nil
	})
	ft.on("eth_sendRawTransaction", func(args []interface{}) (interface{}, error) {
		raw, err := hexutil.Decode(args[0].(string))
		if err != nil {
			return nil, err
		}
		nonce, err := a.decode(raw)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		if nonce != a.pending {
			return nil, nodeError{code: -32000, msg: "nonce too low"}
		}
		a.pending++
		a.nonces = append(a.nonces, nonce)
		a.raws = append(a.raws, raw)
		return crypto.Keccak256Hash(raw).Hex(), nil
	})
}

func typedNonce(raw []byte) (uint64, error) {
	if len(raw) == 0 || raw[0] != txcodec.EIP712TxType {
		return 0, errors.New("not a 0x71 transaction")
	}
	var fields []rlp.RawValue
	if err := rlp.DecodeBytes(raw[1:], &fields); err != nil {
		return 0, err
	}
	var nonce uint64
	err := rlp.DecodeBytes(fields[0], &nonce)
	return nonce, err
}

func legacyNonce(raw []byte) (uint64, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return 0, err
	}
	return tx.Nonce(), nil
}

func testSigner(t *testing.T) *signer.KeySigner {
	t.Helper()
	s, err := signer.NewKeySignerFromHex(testKey)
	require.NoError(t, err)
	return s
}

func transfer() txcodec.TypedTransaction {
	return txcodec.TypedTransaction{
		To:            testAddr,
		Value:         big.NewInt(0xe8d4a51000),
		ChainID:       280,
		GasPrice:      big.NewInt(0x6f9c),
		GasLimit:      big.NewInt(0x55af),
		GasPerPubdata: big.NewInt(0),
	}
}

func TestSendTypedTransaction_SerializesNonces(t *testing.T) {
	const senders = 16
	acct := &account{decode: typedNonce}
	ft := newFakeTransport()
	acct.install(ft)
	c := newTestClient(ft)
	s := testSigner(t)

	var wg sync.WaitGroup
	errs := make([]error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.SendTypedTransaction(context.Background(), transfer(), s.Address(), s)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, acct.nonces, senders)
	for i, n := range acct.nonces {
		assert.Equal(t, uint64(i), n)
	}
	assert.Len(t, ft.callsTo("eth_getTransactionCount"), senders)
}

func TestSendTypedTransaction_UsesPendingNonce(t *testing.T) {
	acct := &account{pending: 7, decode: typedNonce}
	ft := newFakeTransport()
	acct.install(ft)
	c := newTestClient(ft)
	s := testSigner(t)

	hash, err := c.SendTypedTransaction(context.Background(), transfer(), s.Address(), s)
	require.NoError(t, err)
	require.Len(t, acct.raws, 1)
	assert.Equal(t, crypto.Keccak256Hash(acct.raws[0]), hash)

	// The submitted bytes are exactly what the codec produces for nonce 7.
	signed, err := txcodec.Sign(transfer().WithNonce(7), s)
	require.NoError(t, err)
	raw, err := signed.Raw()
	require.NoError(t, err)
	assert.Equal(t, raw, acct.raws[0])

	calls := ft.callsTo("eth_getTransactionCount")
	require.Len(t, calls, 1)
	assert.Equal(t, `["`+hexLower(s.Address())+`","pending"]`, paramJSON(calls[0].args))
}

func hexLower(a common.Address) string {
	return hexutil.Encode(a.Bytes())
}

type countingSigner struct {
	calls atomic.Int32
	err   error
}

func (s *countingSigner) Sign([]byte) ([]byte, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return make([]byte, 65), nil
}

func TestSend_NonceFailureSkipsSigning(t *testing.T) {
	ft := newFakeTransport().fail("eth_getTransactionCount", nodeError{code: -32000, msg: "unavailable"})
	c := newTestClient(ft)
	s := &countingSigner{}

	_, err := c.SendTypedTransaction(context.Background(), transfer(), testAddr, s)
	assert.ErrorIs(t, err, ErrExecution)
	_, err = c.SendLegacyTransaction(context.Background(), txcodec.LegacyTransaction{To: &testAddr}, testAddr, s)
	assert.ErrorIs(t, err, ErrExecution)

	assert.Zero(t, s.calls.Load())
	assert.Empty(t, ft.callsTo("eth_sendRawTransaction"))

	// The slot was released on the failure path.
	ft.reply("eth_getTransactionCount", "0x0").reply("eth_sendRawTransaction", testHash.Hex())
	_, err = c.SendTypedTransaction(context.Background(), transfer(), testAddr, s)
	require.NoError(t, err)
}

func TestSend_SignerFailureIsEncodeIssue(t *testing.T) {
	ft := newFakeTransport().reply("eth_getTransactionCount", "0x0")
	c := newTestClient(ft)
	s := &countingSigner{err: errors.New("hsm offline")}

	_, err := c.SendTypedTransaction(context.Background(), transfer(), testAddr, s)
	assert.ErrorIs(t, err, ErrEncodeIssue)
	assert.Empty(t, ft.callsTo("eth_sendRawTransaction"))
}

func TestSendLegacyTransaction_BackfillsChainID(t *testing.T) {
	acct := &account{pending: 2, decode: legacyNonce}
	ft := newFakeTransport()
	acct.install(ft)
	c := NewClient(context.Background(), ft, WithNetwork(chain.NewNetwork(11155111)))
	s := testSigner(t)

	tx := txcodec.LegacyTransaction{
		To:       &testAddr,
		Value:    big.NewInt(1),
		GasPrice: big.NewInt(1000000000),
		GasLimit: big.NewInt(21000),
	}
	_, err := c.SendLegacyTransaction(context.Background(), tx, s.Address(), s)
	require.NoError(t, err)
	require.Len(t, acct.raws, 1)
	assert.Nil(t, tx.ChainID)
	assert.Nil(t, tx.Nonce)

	decoded := new(types.Transaction)
	require.NoError(t, decoded.UnmarshalBinary(acct.raws[0]))
	assert.Equal(t, uint64(2), decoded.Nonce())
	assert.Equal(t, int64(11155111), decoded.ChainId().Int64())

	sender, err := types.Sender(types.NewEIP155Signer(decoded.ChainId()), decoded)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestSendLegacyTransaction_UnknownNetwork(t *testing.T) {
	ft := newFakeTransport().
		fail("net_version", errors.New("offline")).
		reply("eth_getTransactionCount", "0x0")
	c := NewClient(context.Background(), ft)
	s := &countingSigner{}

	_, err := c.SendLegacyTransaction(context.Background(), txcodec.LegacyTransaction{To: &testAddr}, testAddr, s)
	assert.ErrorIs(t, err, ErrEncodeIssue)
	assert.Zero(t, s.calls.Load())

	// An explicit chain id does not need the network.
	ft.reply("eth_sendRawTransaction", testHash.Hex())
	_, err = c.SendLegacyTransaction(context.Background(), txcodec.LegacyTransaction{To: &testAddr, ChainID: big.NewInt(5)}, testAddr, s)
	require.NoError(t, err)
}
