package rpc

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var errEmptyQuantity = errors.New("empty hex quantity")

// EncodeQuantity renders a JSON-RPC quantity: 0x-prefixed, no leading zeros,
// and "0x0" for zero. This is not the RLP form, where zero is the empty string.
func EncodeQuantity(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}

// NormalizeQuantity rewrites a hex quantity into its canonical wire form,
// e.g. "0x00" -> "0x0" and "0x0a" -> "0xa". Strict node validators reject
// the padded forms.
func NormalizeQuantity(s string) string {
	digits := strings.TrimLeft(trimHexPrefix(s), "0")
	if digits == "" {
		return "0x0"
	}
	return "0x" + strings.ToLower(digits)
}

// ParseQuantity parses a hex quantity. Leading zeros and a missing prefix are
// tolerated because some nodes emit them.
func ParseQuantity(s string) (*big.Int, error) {
	digits := trimHexPrefix(strings.TrimSpace(s))
	if digits == "" {
		return nil, errEmptyQuantity
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok || digits[0] == '-' || digits[0] == '+' {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}

// ParseUint64Quantity parses a hex quantity that must fit in 64 bits.
func ParseUint64Quantity(s string) (uint64, error) {
	v, err := ParseQuantity(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("hex quantity %q overflows uint64", s)
	}
	return v.Uint64(), nil
}

func trimHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
