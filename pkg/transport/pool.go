// Package transport provides a multi-node JSON-RPC transport with scoring,
// failover, per-node rate limits and concurrency caps.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// Error definitions
var (
	ErrNoAvailableNodes  = errors.New("no available rpc nodes")
	ErrNoNodeMeetsHeight = errors.New("no node meets the required block height")
)

// DefaultSyncInterval is how often node heights are refreshed.
const DefaultSyncInterval = 5 * time.Second

const maxAttempts = 3

// Pool manages multiple RPC nodes, providing load balancing and failover.
// It satisfies the rpc.Transport interface.
type Pool struct {
	nodes        []*Node
	globalHeight uint64

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPool dials every configured node. Unreachable nodes are skipped as long
// as at least one connects.
func NewPool(ctx context.Context, configs []NodeConfig, syncInterval time.Duration) (*Pool, error) {
	if len(configs) == 0 {
		return nil, errors.New("no rpc configs provided")
	}

	nodes := make([]*Node, 0, len(configs))
	for _, cfg := range configs {
		n, err := NewNode(ctx, cfg)
		if err != nil {
			log.Warn("Failed to connect RPC node", "url", cfg.URL, "err", err)
			continue
		}
		nodes = append(nodes, n)
	}

	return NewPoolWithNodes(ctx, nodes, syncInterval)
}

// NewPoolWithNodes builds a pool over existing nodes and starts the
// background height sync. Close stops it.
func NewPoolWithNodes(ctx context.Context, nodes []*Node, syncInterval time.Duration) (*Pool, error) {
	if len(nodes) == 0 {
		return nil, errors.New("failed to connect to any rpc node")
	}
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}

	syncCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		nodes:  nodes,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.startBackgroundSync(syncCtx, syncInterval)

	return p, nil
}

// startBackgroundSync periodically polls all nodes to update their heights and scores
func (p *Pool) startBackgroundSync(ctx context.Context, interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.syncNodes(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncNodes(ctx)
		}
	}
}

func (p *Pool) syncNodes(ctx context.Context) {
	var maxH uint64
	var wg sync.WaitGroup

	for _, n := range p.Nodes() {
		wg.Add(1)
		go func(node *Node) {
			defer wg.Done()
			// Maintenance traffic bypasses the rate limiter
			h, err := node.BlockNumber(ctx)
			if err != nil {
				log.Debug("Node height sync failed", "url", node.URL(), "err", err)
				return
			}
			for {
				cur := atomic.LoadUint64(&maxH)
				if h <= cur || atomic.CompareAndSwapUint64(&maxH, cur, h) {
					break
				}
			}
		}(n)
	}
	wg.Wait()

	if maxH > 0 {
		atomic.StoreUint64(&p.globalHeight, maxH)
	}
}

// Nodes returns the pool members.
func (p *Pool) Nodes() []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Node(nil), p.nodes...)
}

// GlobalHeight returns the highest block seen by any node.
func (p *Pool) GlobalHeight() uint64 {
	return atomic.LoadUint64(&p.globalHeight)
}

// CallContext sends the request to the best node. A transport failure moves
// on to the next best node, up to three attempts; a JSON-RPC error response
// is returned as is since another node would answer the same.
//
// eth_getLogs with a numeric toBlock only goes to nodes that have seen that
// block: a lagging node answers an empty list for blocks it lacks.
func (p *Pool) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	attempts := len(p.nodes)
	if attempts > maxAttempts {
		attempts = maxAttempts
	}
	required := requiredHeight(method, args)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		node, err := p.pickNodeForHeight(ctx, required)
		if err != nil {
			return err
		}

		err = node.CallContext(ctx, result, method, args...)
		node.Release()
		if err == nil || transportFailure(err) == nil {
			return err
		}

		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.Debug("RPC node failed, switching", "url", node.URL(), "method", method, "err", err)
		failovers.WithLabelValues(method).Inc()
	}

	return lastErr
}

// Close stops the height sync and closes all connections
func (p *Pool) Close() {
	p.cancel()
	<-p.done
	for _, n := range p.Nodes() {
		n.Close()
	}
}

// pickAvailableNode selects an available node with auto-switching
func (p *Pool) pickAvailableNode(ctx context.Context) (*Node, error) {
	return p.pickAvailableNodeWithHeight(ctx, 0)
}

// pickNodeForHeight picks a node that has seen block h. Heights may be
// stale, so they are refreshed once before giving up. When no node has
// reached h yet the block does not exist anywhere and any node will do.
func (p *Pool) pickNodeForHeight(ctx context.Context, h uint64) (*Node, error) {
	if h == 0 {
		return p.pickAvailableNode(ctx)
	}
	node, err := p.pickAvailableNodeWithHeight(ctx, h)
	if !errors.Is(err, ErrNoNodeMeetsHeight) {
		return node, err
	}
	p.syncNodes(ctx)
	node, err = p.pickAvailableNodeWithHeight(ctx, h)
	if errors.Is(err, ErrNoNodeMeetsHeight) && p.GlobalHeight() < h {
		log.Debug("No node has reached the requested block", "block", h, "head", p.GlobalHeight())
		return p.pickAvailableNode(ctx)
	}
	return node, err
}

// pickAvailableNodeWithHeight selects a node that meets the height requirement
func (p *Pool) pickAvailableNodeWithHeight(ctx context.Context, requiredHeight uint64) (*Node, error) {
	globalH := p.GlobalHeight()
	all := p.Nodes()
	if len(all) == 0 {
		return nil, ErrNoAvailableNodes
	}

	candidates := all[:0]
	for _, node := range all {
		if requiredHeight == 0 || node.MeetsHeightRequirement(requiredHeight) {
			candidates = append(candidates, node)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoNodeMeetsHeight
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score(globalH) > candidates[j].Score(globalH)
	})

	for _, node := range candidates {
		// Busy, rate-limited or circuit-broken nodes are skipped
		if err := node.TryAcquire(ctx); err == nil {
			return node, nil
		}
	}

	// Everything is saturated: wait for the best node
	best := candidates[0]
	if best.IsCircuitBroken() {
		return nil, ErrNoAvailableNodes
	}
	if err := best.Acquire(ctx); err != nil {
		return nil, err
	}
	return best, nil
}

// requiredHeight returns the block a request needs the node to have, or 0.
// Only eth_getLogs with a numeric toBlock has one.
func requiredHeight(method string, args []interface{}) uint64 {
	if method != "eth_getLogs" || len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return 0
	}
	var q struct {
		ToBlock string `json:"toBlock"`
	}
	if err := json.Unmarshal(b, &q); err != nil {
		return 0
	}
	h, err := hexutil.DecodeUint64(q.ToBlock)
	if err != nil {
		return 0
	}
	return h
}
