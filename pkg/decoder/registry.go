package decoder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Registry routes logs to the decoder that registered their topic0, so logs
// from contracts with different ABIs can share one collection pass.
type Registry struct {
	byID map[common.Hash]*EventDecoder
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[common.Hash]*EventDecoder)}
}

// Register maps the named events of d (all of them when names is empty) to
// d and returns their IDs. A later registration of the same ID wins.
func (r *Registry) Register(d *EventDecoder, names ...string) ([]common.Hash, error) {
	ids, err := d.EventIDs(names...)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		r.byID[id] = d
	}
	return ids, nil
}

// Len returns the number of registered event IDs.
func (r *Registry) Len() int { return len(r.byID) }

// Decode decodes l with the decoder registered for its topic0.
func (r *Registry) Decode(l types.Log) (*DecodedLog, error) {
	if len(l.Topics) == 0 {
		return nil, ErrNoTopics
	}
	d, ok := r.byID[l.Topics[0]]
	if !ok {
		return nil, ErrUnknownEvent
	}
	return d.Decode(l)
}
