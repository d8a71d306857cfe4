package txcodec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/84hero/evm-txclient/pkg/signer"
)

const zkSyncTestnetChainID = 280

func eoaTransfer() TypedTransaction {
	return TypedTransaction{
		To:       common.HexToAddress("0x64d0eA4FC60f27E74f1a70Aa6f39D403bBe56793"),
		Value:    hexutil.MustDecodeBig("0xe8d4a51000"),
		Data:     []byte{},
		ChainID:  zkSyncTestnetChainID,
		Nonce:    0,
		GasPrice: hexutil.MustDecodeBig("0x6f9c"),
		GasLimit: hexutil.MustDecodeBig("0x55af"),
	}
}

func TestTypedTransaction_EncodesKnownVector(t *testing.T) {
	sig := hexutil.MustDecode("0xab458591c89f04e201676cdd70b009b7edf38d892cd0727bac6f72f80907bce54c7e79049aa2f690bc56827d7433a3eb3c00a382b38e01c1b3b297a2c39a9d4a1c")

	signed, err := NewSignedTransaction(eoaTransfer(), sig)
	require.NoError(t, err)

	raw, err := signed.Raw()
	require.NoError(t, err)
	assert.Equal(t,
		"0x71f88180826f9c8255af9464d0ea4fc60f27e74f1a70aa6f39d403bbe5679385e8d4a510008001a0ab458591c89f04e201676cdd70b009b7edf38d892cd0727bac6f72f80907bce5a04c7e79049aa2f690bc56827d7433a3eb3c00a382b38e01c1b3b297a2c39a9d4a82011894000000000000000000000000000000000000000080c0c0",
		hexutil.Encode(raw))
}

func TestTypedTransaction_EncodesNonZeroFeeToken(t *testing.T) {
	tx := eoaTransfer()
	tx.FeeToken = common.HexToAddress("0x54a14D7559BAF2C8e8Fa504E019d32479739018c")
	sig := hexutil.MustDecode("0x07e1fd4eee291f740c413575223ba34f4e332538060207c61bab8f108276c6e31a07bc459cc7f31a7b26aba83f25fba158655df6f4ea2425f17d14c53b0634991c")

	signed, err := NewSignedTransaction(tx, sig)
	require.NoError(t, err)

	raw, err := signed.Raw()
	require.NoError(t, err)
	assert.Equal(t,
		"0x71f88180826f9c8255af9464d0ea4fc60f27e74f1a70aa6f39d403bbe5679385e8d4a510008001a007e1fd4eee291f740c413575223ba34f4e332538060207c61bab8f108276c6e3a01a07bc459cc7f31a7b26aba83f25fba158655df6f4ea2425f17d14c53b0634998201189454a14d7559baf2c8e8fa504e019d32479739018c80c0c0",
		hexutil.Encode(raw))
}

func TestSignedTransaction_Deterministic(t *testing.T) {
	sig := make([]byte, SignatureLength)
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	sig[64] = 0

	a, err := NewSignedTransaction(eoaTransfer(), sig)
	require.NoError(t, err)
	b, err := NewSignedTransaction(eoaTransfer(), sig)
	require.NoError(t, err)

	rawA, err := a.Raw()
	require.NoError(t, err)
	rawA2, err := a.Raw()
	require.NoError(t, err)
	rawB, err := b.Raw()
	require.NoError(t, err)
	assert.Equal(t, rawA, rawA2)
	assert.Equal(t, rawA, rawB)

	hash, err := a.Hash()
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(rawA), hash)
}

func TestSignedTransaction_IsImmutable(t *testing.T) {
	tx := eoaTransfer()
	tx.Data = []byte{0xde, 0xad}
	sig := make([]byte, SignatureLength)

	signed, err := NewSignedTransaction(tx, sig)
	require.NoError(t, err)
	before, err := signed.Raw()
	require.NoError(t, err)

	// Mutating the caller's copy must not leak into the signed value.
	tx.Data[0] = 0x00
	tx.Value.SetUint64(1)

	after, err := signed.Raw()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	fresh, err := NewSignedTransaction(signed.Transaction(), sig)
	require.NoError(t, err)
	again, err := fresh.Raw()
	require.NoError(t, err)
	assert.Equal(t, before, again)
}

func TestNewSignedTransaction_Errors(t *testing.T) {
	_, err := NewSignedTransaction(eoaTransfer(), []byte{0x01})
	assert.Error(t, err)

	_, err = NewSignedTransaction(nil, make([]byte, SignatureLength))
	assert.ErrorIs(t, err, ErrNilTransaction)
}

func word(v *big.Int) []byte {
	return math.U256Bytes(new(big.Int).Set(v))
}

func TestTypedTransaction_SigningHashMatchesEIP712(t *testing.T) {
	tx := eoaTransfer()
	tx.Nonce = 7
	tx.Data = []byte{0xca, 0xfe}
	tx.GasPerPubdata = big.NewInt(800)
	tx.FeeToken = common.HexToAddress("0x54a14D7559BAF2C8e8Fa504E019d32479739018c")

	typeHash := crypto.Keccak256([]byte("Transaction(uint8 txType,uint256 to,uint256 value,bytes data,uint256 feeToken,uint256 ergsLimit,uint256 ergsPerPubdataByteLimit,uint256 ergsPrice,uint256 nonce)"))
	var enc []byte
	enc = append(enc, typeHash...)
	enc = append(enc, word(big.NewInt(0x71))...)
	enc = append(enc, word(new(big.Int).SetBytes(tx.To.Bytes()))...)
	enc = append(enc, word(tx.Value)...)
	enc = append(enc, crypto.Keccak256(tx.Data)...)
	enc = append(enc, word(new(big.Int).SetBytes(tx.FeeToken.Bytes()))...)
	enc = append(enc, word(tx.GasLimit)...)
	enc = append(enc, word(tx.GasPerPubdata)...)
	enc = append(enc, word(tx.GasPrice)...)
	enc = append(enc, word(big.NewInt(7))...)
	structHash := crypto.Keccak256(enc)

	domainType := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	var dom []byte
	dom = append(dom, domainType...)
	dom = append(dom, crypto.Keccak256([]byte("zkSync"))...)
	dom = append(dom, crypto.Keccak256([]byte("2"))...)
	dom = append(dom, word(big.NewInt(zkSyncTestnetChainID))...)
	domainSeparator := crypto.Keccak256(dom)

	want := crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator, structHash)

	got, err := tx.SigningHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTypedTransaction_TypedDataShape(t *testing.T) {
	td := eoaTransfer().TypedData()
	assert.Equal(t, "Transaction", td.PrimaryType)
	assert.Equal(t, "zkSync", td.Domain.Name)
	assert.Equal(t, "2", td.Domain.Version)
	assert.Equal(t, int64(zkSyncTestnetChainID), (*big.Int)(td.Domain.ChainId).Int64())

	names := make([]string, 0, len(td.Types["Transaction"]))
	for _, f := range td.Types["Transaction"] {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"txType", "to", "value", "data", "feeToken", "ergsLimit", "ergsPerPubdataByteLimit", "ergsPrice", "nonce"}, names)
	assert.Zero(t, td.Message["feeToken"].(*big.Int).Sign())
}

func TestSign_TypedTransactionRecoversSigner(t *testing.T) {
	s, err := signer.NewKeySignerFromHex("0xf707ce8805f09a68294b4efdfad686629b31a5128670ef0e502c8c396181f1cb")
	require.NoError(t, err)

	signed, err := Sign(eoaTransfer(), s)
	require.NoError(t, err)

	digest, err := eoaTransfer().SigningHash()
	require.NoError(t, err)
	pub, err := crypto.SigToPub(digest.Bytes(), signed.Signature().Bytes())
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))

	raw, err := signed.Raw()
	require.NoError(t, err)
	assert.Equal(t, EIP712TxType, raw[0])
}
