package rpc

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// heavyFilterSize is the number of candidates per position beyond which a
// block bloom saturates and stops being a useful pre-check.
const heavyFilterSize = 20

// Topics is the topic constraint of a log filter. It is either a flat list of
// optional exact-match topics or a list of OR-groups; a nil entry is a wildcard.
type Topics struct {
	groups   [][]common.Hash
	composed bool
}

// PlainTopics builds a flat topic list: [A, null, B] matches A at position 0
// and B at position 2.
func PlainTopics(topics ...*common.Hash) Topics {
	groups := make([][]common.Hash, len(topics))
	for i, t := range topics {
		if t != nil {
			groups[i] = []common.Hash{*t}
		}
	}
	return Topics{groups: groups}
}

// OrTopics builds OR-groups: [[A, B], nil, [C]] means
// (topic0 in {A, B}) AND (topic2 == C).
func OrTopics(groups ...[]common.Hash) Topics {
	cp := make([][]common.Hash, len(groups))
	for i, g := range groups {
		if g != nil {
			cp[i] = append([]common.Hash{}, g...)
		}
	}
	return Topics{groups: cp, composed: true}
}

// IsEmpty reports whether no topic constraint is set.
func (t Topics) IsEmpty() bool {
	return len(t.groups) == 0
}

// Groups returns the constraint as OR-groups regardless of the original form.
func (t Topics) Groups() [][]common.Hash {
	return t.groups
}

// MarshalJSON emits the shape eth_getLogs expects for the chosen form.
func (t Topics) MarshalJSON() ([]byte, error) {
	out := make([]interface{}, len(t.groups))
	for i, g := range t.groups {
		switch {
		case g == nil:
			out[i] = nil
		case t.composed:
			out[i] = g
		default:
			out[i] = g[0]
		}
	}
	return json.Marshal(out)
}

// LogFilter selects logs by emitting contract and topics. The block range is
// supplied per query so one filter can drive many sub-range requests.
type LogFilter struct {
	// Addresses limits the emitting contracts. Empty means any.
	Addresses []common.Address
	Topics    Topics
}

// NewLogFilter creates an empty filter.
func NewLogFilter() *LogFilter {
	return &LogFilter{}
}

// AddContract adds contract addresses to listen to.
func (f *LogFilter) AddContract(addrs ...common.Address) *LogFilter {
	f.Addresses = append(f.Addresses[:len(f.Addresses):len(f.Addresses)], addrs...)
	return f
}

// SetTopic appends candidates to the OR-group at pos (0 is usually the
// event signature). The filter switches to OR-group form. Copies of the
// filter taken earlier are not affected.
func (f *LogFilter) SetTopic(pos int, hashes ...common.Hash) *LogFilter {
	n := len(f.Topics.groups)
	if n <= pos {
		n = pos + 1
	}
	groups := make([][]common.Hash, n)
	copy(groups, f.Topics.groups)
	groups[pos] = append(append([]common.Hash{}, groups[pos]...), hashes...)
	f.Topics = Topics{groups: groups, composed: true}
	return f
}

// IsHeavy reports whether the filter is too broad for a local bloom check.
func (f LogFilter) IsHeavy() bool {
	if len(f.Addresses) > heavyFilterSize {
		return true
	}
	for _, g := range f.Topics.groups {
		if len(g) > heavyFilterSize {
			return true
		}
	}
	return false
}

// MatchesBloom returns false only if the block bloom proves that no log in
// the block can match.
func (f LogFilter) MatchesBloom(bloom types.Bloom) bool {
	if len(f.Addresses) > 0 && !anyInBloom(bloom, len(f.Addresses), func(i int) []byte { return f.Addresses[i].Bytes() }) {
		return false
	}
	for _, g := range f.Topics.groups {
		if len(g) == 0 {
			continue
		}
		if !anyInBloom(bloom, len(g), func(i int) []byte { return g[i].Bytes() }) {
			return false
		}
	}
	return true
}

func anyInBloom(bloom types.Bloom, n int, item func(int) []byte) bool {
	for i := 0; i < n; i++ {
		if bloom.Test(item(i)) {
			return true
		}
	}
	return false
}

// filterArg is the single positional param of eth_getLogs.
type filterArg struct {
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Address   []common.Address `json:"address,omitempty"`
	Topics    *Topics          `json:"topics,omitempty"`
}

func (f LogFilter) toArg(from, to BlockTag) filterArg {
	arg := filterArg{
		FromBlock: from.String(),
		ToBlock:   to.String(),
		Address:   f.Addresses,
	}
	if !f.Topics.IsEmpty() {
		topics := f.Topics
		arg.Topics = &topics
	}
	return arg
}
