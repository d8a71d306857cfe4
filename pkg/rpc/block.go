package rpc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type blockTagKind int

const (
	tagLatest blockTagKind = iota
	tagEarliest
	tagPending
	tagNumber
)

// BlockTag selects a block: one of the symbolic tags or a concrete number.
// The zero value is Latest.
type BlockTag struct {
	kind   blockTagKind
	number uint64
}

var (
	Latest   = BlockTag{kind: tagLatest}
	Earliest = BlockTag{kind: tagEarliest}
	Pending  = BlockTag{kind: tagPending}
)

// BlockNumber returns the tag for a concrete block height.
func BlockNumber(n uint64) BlockTag {
	return BlockTag{kind: tagNumber, number: n}
}

// Number returns the height; only concrete tags can take part in arithmetic.
func (b BlockTag) Number() (uint64, bool) {
	return b.number, b.kind == tagNumber
}

// String renders the JSON-RPC block parameter.
func (b BlockTag) String() string {
	switch b.kind {
	case tagEarliest:
		return "earliest"
	case tagPending:
		return "pending"
	case tagNumber:
		return hexutil.EncodeUint64(b.number)
	default:
		return "latest"
	}
}

// MarshalText makes BlockTag usable directly as a JSON-RPC param.
func (b BlockTag) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// ParseBlockTag accepts earliest, latest, pending, a 0x-quantity or a decimal height.
func ParseBlockTag(s string) (BlockTag, error) {
	switch s {
	case "", "latest":
		return Latest, nil
	case "earliest":
		return Earliest, nil
	case "pending":
		return Pending, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := ParseUint64Quantity(s)
		if err != nil {
			return BlockTag{}, fmt.Errorf("invalid block tag %q: %w", s, err)
		}
		return BlockNumber(n), nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return BlockTag{}, fmt.Errorf("invalid block tag %q", s)
	}
	return BlockNumber(n), nil
}
