// Package decoder turns collected logs into named event fields using a
// contract ABI.
package decoder

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNoTopics     = errors.New("log has no topics")
	ErrUnknownEvent = errors.New("event signature not found in ABI")
)

// EventDecoder decodes logs with go-ethereum's ABI parser.
type EventDecoder struct {
	parsedABI abi.ABI
}

// NewFromJSON creates a decoder from a JSON ABI string
func NewFromJSON(jsonStr string) (*EventDecoder, error) {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		return nil, err
	}
	return &EventDecoder{parsedABI: parsed}, nil
}

// NewFromFile reads a JSON ABI file.
func NewFromFile(path string) (*EventDecoder, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	return NewFromJSON(string(b))
}

// DecodedLog contains the event name and its arguments by name.
type DecodedLog struct {
	Name   string                 `json:"name"`
	Inputs map[string]interface{} `json:"inputs"`
}

// EventIDs returns the topic0 hashes of the named events, or of every event
// in the ABI when no names are given. Use it as the first topic group of a
// log filter.
func (d *EventDecoder) EventIDs(names ...string) ([]common.Hash, error) {
	if len(names) == 0 {
		ids := make([]common.Hash, 0, len(d.parsedABI.Events))
		for _, ev := range d.parsedABI.Events {
			ids = append(ids, ev.ID)
		}
		return ids, nil
	}
	ids := make([]common.Hash, 0, len(names))
	for _, name := range names {
		ev, ok := d.parsedABI.Events[name]
		if !ok {
			return nil, fmt.Errorf("event %q not in ABI", name)
		}
		ids = append(ids, ev.ID)
	}
	return ids, nil
}

// Decode parses a single log
func (d *EventDecoder) Decode(log types.Log) (*DecodedLog, error) {
	if len(log.Topics) == 0 {
		return nil, ErrNoTopics
	}

	event, err := d.parsedABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, ErrUnknownEvent
	}

	result := &DecodedLog{
		Name:   event.Name,
		Inputs: make(map[string]interface{}),
	}

	// Non-indexed arguments live in Data
	if len(log.Data) > 0 {
		if err := d.parsedABI.UnpackIntoMap(result.Inputs, event.Name, log.Data); err != nil {
			return nil, err
		}
	}

	var indexedArgs abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexedArgs = append(indexedArgs, arg)
		}
	}

	// Topics[0] is the signature
	if len(log.Topics)-1 != len(indexedArgs) {
		return nil, fmt.Errorf("topic count mismatch: expected %d, got %d", len(indexedArgs), len(log.Topics)-1)
	}

	if err := abi.ParseTopicsIntoMap(result.Inputs, indexedArgs, log.Topics[1:]); err != nil {
		return nil, err
	}

	return result, nil
}

// DecodeAll decodes logs in order. Logs of events the ABI does not know
// yield a nil entry so indexes stay aligned with the input.
func (d *EventDecoder) DecodeAll(logs []types.Log) ([]*DecodedLog, error) {
	out := make([]*DecodedLog, len(logs))
	for i, l := range logs {
		dec, err := d.Decode(l)
		if errors.Is(err, ErrUnknownEvent) || errors.Is(err, ErrNoTopics) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode log %d of tx %s: %w", l.Index, l.TxHash.Hex(), err)
		}
		out[i] = dec
	}
	return out, nil
}
