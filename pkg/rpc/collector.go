package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxDepth bounds the bisection. A uint64 range is down to single
// blocks after 64 halvings, so the default never cuts a real split short.
const DefaultMaxDepth = 64

// Collector fetches every log matching a filter over a block range. When the
// node answers "too many results" it halves the range and recurses; results
// come back in block order with no gaps or duplicates.
type Collector struct {
	client *Client

	// MaxDepth limits the recursion; exceeding it surfaces ErrTooManyResults.
	MaxDepth int
	// Parallel fetches the two halves of a split concurrently. Output order
	// is unaffected.
	Parallel bool
	// UseBloom lets CollectBatches skip single-block windows whose header
	// bloom rules out a match.
	UseBloom bool
}

// NewCollector creates a sequential collector with the default depth bound.
func NewCollector(c *Client) *Collector {
	return &Collector{client: c, MaxDepth: DefaultMaxDepth}
}

// BatchHandler receives the logs of one window of CollectBatches.
type BatchHandler func(ctx context.Context, from, to uint64, logs []types.Log) error

// Collect returns all logs in [from, to].
func (col *Collector) Collect(ctx context.Context, filter LogFilter, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, newError(KindEncodeIssue, fmt.Errorf("invalid block range [%d, %d]", from, to))
	}
	return col.collect(ctx, filter, from, to, 0)
}

func (col *Collector) collect(ctx context.Context, filter LogFilter, from, to uint64, depth int) ([]types.Log, error) {
	logs, err := col.client.FetchLogs(ctx, filter, BlockNumber(from), BlockNumber(to))
	if err == nil {
		return logs, nil
	}
	// A single block over the cap cannot be split further.
	if !errors.Is(err, ErrTooManyResults) || from == to {
		return nil, err
	}
	if depth >= col.maxDepth() {
		log.Warn("Log range split depth exceeded", "from", from, "to", to, "depth", depth)
		return nil, err
	}

	mid := from + (to-from)/2
	log.Debug("Splitting log range", "from", from, "mid", mid, "to", to, "depth", depth)

	if !col.Parallel {
		left, err := col.collect(ctx, filter, from, mid, depth+1)
		if err != nil {
			return nil, err
		}
		right, err := col.collect(ctx, filter, mid+1, to, depth+1)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	}

	var (
		g                 errgroup.Group
		left, right       []types.Log
		leftErr, rightErr error
	)
	g.Go(func() error {
		left, leftErr = col.collect(ctx, filter, from, mid, depth+1)
		return leftErr
	})
	g.Go(func() error {
		right, rightErr = col.collect(ctx, filter, mid+1, to, depth+1)
		return rightErr
	})
	_ = g.Wait()
	// Report the failure of the earlier range, independent of completion order.
	if leftErr != nil {
		return nil, leftErr
	}
	if rightErr != nil {
		return nil, rightErr
	}
	return append(left, right...), nil
}

func (col *Collector) maxDepth() int {
	if col.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return col.MaxDepth
}

// CollectTags resolves symbolic bounds first: earliest is block 0, latest
// and pending are the current head.
func (col *Collector) CollectTags(ctx context.Context, filter LogFilter, from, to BlockTag) ([]types.Log, error) {
	var head *uint64
	resolve := func(tag BlockTag) (uint64, error) {
		if n, ok := tag.Number(); ok {
			return n, nil
		}
		if tag == Earliest {
			return 0, nil
		}
		if head == nil {
			h, err := col.client.BlockNumber(ctx)
			if err != nil {
				return 0, err
			}
			head = &h
		}
		return *head, nil
	}
	lo, err := resolve(from)
	if err != nil {
		return nil, err
	}
	hi, err := resolve(to)
	if err != nil {
		return nil, err
	}
	return col.Collect(ctx, filter, lo, hi)
}

// CollectAll returns the logs in [from, to] matching any of the filters,
// in block order. A log matched by several filters appears once. No filters
// means every log.
func (col *Collector) CollectAll(ctx context.Context, filters []LogFilter, from, to uint64) ([]types.Log, error) {
	if len(filters) == 0 {
		return col.Collect(ctx, LogFilter{}, from, to)
	}
	if len(filters) == 1 {
		return col.Collect(ctx, filters[0], from, to)
	}
	sets := make([][]types.Log, 0, len(filters))
	for _, f := range filters {
		logs, err := col.Collect(ctx, f, from, to)
		if err != nil {
			return nil, err
		}
		sets = append(sets, logs)
	}
	return mergeLogs(sets), nil
}

// mergeLogs orders logs by (block, index) and drops repeats of a position.
func mergeLogs(sets [][]types.Log) []types.Log {
	var all []types.Log
	for _, s := range sets {
		all = append(all, s...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].BlockNumber != all[j].BlockNumber {
			return all[i].BlockNumber < all[j].BlockNumber
		}
		return all[i].Index < all[j].Index
	})
	out := all[:0]
	for i, l := range all {
		if i > 0 && l.BlockNumber == all[i-1].BlockNumber && l.Index == all[i-1].Index {
			continue
		}
		out = append(out, l)
	}
	return out
}

// CollectBatches walks [from, to] in windows of batchSize blocks, collecting
// each window completely before handing it to h. Windows without logs are
// not passed to h. A handler error stops the walk.
func (col *Collector) CollectBatches(ctx context.Context, filter LogFilter, from, to, batchSize uint64, h BatchHandler) error {
	return col.CollectBatchesAll(ctx, []LogFilter{filter}, from, to, batchSize, h)
}

// CollectBatchesAll is CollectBatches over the union of several filters;
// each window is assembled as by CollectAll.
func (col *Collector) CollectBatchesAll(ctx context.Context, filters []LogFilter, from, to, batchSize uint64, h BatchHandler) error {
	if from > to {
		return newError(KindEncodeIssue, fmt.Errorf("invalid block range [%d, %d]", from, to))
	}
	if batchSize == 0 {
		batchSize = 100
	}
	if len(filters) == 0 {
		filters = []LogFilter{{}}
	}
	checkBloom := col.UseBloom && batchSize == 1
	for _, f := range filters {
		if f.IsHeavy() {
			checkBloom = false
		}
	}

	for cur := from; ; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := cur + batchSize - 1
		if end > to || end < cur {
			end = to
		}

		skip := false
		if checkBloom {
			header, err := col.client.GetBlockByNumber(ctx, BlockNumber(cur))
			if err != nil {
				return err
			}
			skip = true
			for _, f := range filters {
				if f.MatchesBloom(header.LogsBloom) {
					skip = false
					break
				}
			}
		}
		if !skip {
			logs, err := col.CollectAll(ctx, filters, cur, end)
			if err != nil {
				log.Error("Collect range failed", "from", cur, "to", end, "err", err)
				return err
			}
			if len(logs) > 0 && h != nil {
				if err := h(ctx, cur, end, logs); err != nil {
					return err
				}
			}
		}

		if end == to {
			return nil
		}
		cur = end + 1
	}
}

// GetLogs collects all logs between two block tags with a sequential
// collector, splitting the range as often as the node requires.
func (c *Client) GetLogs(ctx context.Context, filter LogFilter, from, to BlockTag) ([]types.Log, error) {
	return NewCollector(c).CollectTags(ctx, filter, from, to)
}
