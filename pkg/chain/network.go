package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NetworkKind tells whether the client knows which chain it talks to.
type NetworkKind int

const (
	// NetworkUnknown means net_version has not been answered (yet).
	NetworkUnknown NetworkKind = iota
	// NetworkKnown is a chain with a registered preset.
	NetworkKnown
	// NetworkCustom is any other chain id reported by the node.
	NetworkCustom
)

// Network is the identity of the chain a client is bound to.
// The zero value is the unknown network.
type Network struct {
	kind   NetworkKind
	id     uint64
	preset Preset
}

// Unknown is the network state before identity has been resolved.
var Unknown = Network{}

// NewNetwork builds a network for a chain id, attaching the preset if one exists.
func NewNetwork(id uint64) Network {
	if p, ok := ByID(id); ok {
		return Network{kind: NetworkKnown, id: id, preset: p}
	}
	return Network{kind: NetworkCustom, id: id}
}

// ParseNetwork interprets a net_version answer. Nodes return a decimal string;
// a 0x-prefixed value is accepted as well.
func ParseNetwork(version string) (Network, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		return Unknown, fmt.Errorf("empty network version")
	}
	id, ok := new(big.Int).SetString(v, 10)
	if !ok {
		hexID, err := hexutil.DecodeBig(v)
		if err != nil {
			return Unknown, fmt.Errorf("invalid network version %q", version)
		}
		id = hexID
	}
	if !id.IsUint64() {
		return Unknown, fmt.Errorf("network version out of range: %s", v)
	}
	return NewNetwork(id.Uint64()), nil
}

// Kind returns the variant.
func (n Network) Kind() NetworkKind {
	return n.kind
}

// IsKnown reports whether the identity has been resolved at all.
func (n Network) IsKnown() bool {
	return n.kind != NetworkUnknown
}

// ChainID returns the chain id, or false for the unknown network.
func (n Network) ChainID() (*big.Int, bool) {
	if n.kind == NetworkUnknown {
		return nil, false
	}
	return new(big.Int).SetUint64(n.id), true
}

// Preset returns the registered preset for known networks.
func (n Network) Preset() (Preset, bool) {
	return n.preset, n.kind == NetworkKnown
}

func (n Network) String() string {
	switch n.kind {
	case NetworkKnown:
		return n.preset.Name
	case NetworkCustom:
		return fmt.Sprintf("custom(%d)", n.id)
	default:
		return "unknown"
	}
}
