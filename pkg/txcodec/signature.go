package txcodec

import (
	"fmt"
)

// SignatureLength is the size of a raw [R || S || V] signature.
const SignatureLength = 65

// Signature is a secp256k1 signature split into its components.
type Signature struct {
	R [32]byte
	S [32]byte
	// V is the trailing byte exactly as the signer produced it (0/1 or 27/28)
	V byte
}

// SignatureFromBytes splits a 65-byte signature: bytes 0-31 are R, 32-63 are S, byte 64 is V.
func SignatureFromBytes(raw []byte) (Signature, error) {
	if len(raw) != SignatureLength {
		return Signature{}, fmt.Errorf("invalid signature length: expected %d, got %d", SignatureLength, len(raw))
	}
	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]
	return sig, nil
}

// RecoveryParam returns the recovery id (0 or 1) regardless of whether the
// signer used the 27/28 convention.
func (s Signature) RecoveryParam() uint8 {
	if s.V >= 27 {
		return s.V - 27
	}
	return s.V
}

// Bytes reassembles the original 65-byte signature.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, SignatureLength)
	out = append(out, s.R[:]...)
	out = append(out, s.S[:]...)
	return append(out, s.V)
}
