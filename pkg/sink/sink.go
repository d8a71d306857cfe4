// Package sink exports collected logs to external systems.
//
// Every output receives a Batch: the logs of one collected block window,
// in chain order, each paired with its ABI-decoded event when available.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/84hero/evm-txclient/pkg/decoder"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Record wraps a raw log and its decoded result.
type Record struct {
	Log       types.Log           `json:"log"`
	Decoded   *decoder.DecodedLog `json:"decoded,omitempty"`
	EventName string              `json:"event_name,omitempty"`
}

// Batch is the unit handed to outputs.
type Batch struct {
	Network   string
	FromBlock uint64
	ToBlock   uint64
	Records   []Record
}

// Output defines the interface for event output pipeline
type Output interface {
	Name() string
	Send(ctx context.Context, batch Batch) error
	Close() error
}

// Decoder is satisfied by *decoder.EventDecoder and *decoder.Registry.
type Decoder interface {
	Decode(types.Log) (*decoder.DecodedLog, error)
}

// NewRecords pairs logs with their decoded events. Logs the decoder cannot
// decode are exported raw. A nil decoder yields raw records only.
func NewRecords(logs []types.Log, dec Decoder) []Record {
	records := make([]Record, len(logs))
	for i, l := range logs {
		records[i].Log = l
		if dec == nil {
			continue
		}
		res, err := dec.Decode(l)
		if err != nil {
			if !errors.Is(err, decoder.ErrUnknownEvent) && !errors.Is(err, decoder.ErrNoTopics) {
				log.Debug("Log left undecoded", "tx", l.TxHash, "index", l.Index, "err", err)
			}
			continue
		}
		records[i].Decoded = res
		records[i].EventName = res.Name
	}
	return records
}

// Fanout sends each batch to every output concurrently.
type Fanout struct {
	outputs []Output
}

func NewFanout(outputs ...Output) *Fanout {
	return &Fanout{outputs: outputs}
}

func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of wrapped outputs.
func (f *Fanout) Len() int { return len(f.outputs) }

// Send waits for all outputs and returns their joined failures, each
// prefixed with the output name.
func (f *Fanout) Send(ctx context.Context, batch Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	errs := make([]error, len(f.outputs))
	var wg sync.WaitGroup
	for i, out := range f.outputs {
		wg.Add(1)
		go func(i int, o Output) {
			defer wg.Done()
			if err := o.Send(ctx, batch); err != nil {
				errs[i] = fmt.Errorf("%s: %w", o.Name(), err)
			}
		}(i, out)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, o := range f.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		}
	}
	return errors.Join(errs...)
}
