package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Node admission errors. TryAcquire returns one of these when the node cannot
// take a request right now.
var (
	ErrNodeBusy          = errors.New("rpc node busy")
	ErrRateLimitExceeded = errors.New("rpc node rate limit exceeded")
	ErrCircuitBroken     = errors.New("rpc node circuit broken")
)

const (
	// circuitBreakThreshold consecutive transport errors open the circuit.
	circuitBreakThreshold = 5
	circuitCooldown       = 30 * time.Second
)

// Caller is the request primitive of a single endpoint. *gethrpc.Client
// implements it.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// NodeConfig represents configuration for a single RPC node
type NodeConfig struct {
	URL      string
	Priority int // Initial weight (1-100), higher is more preferred
	// RateLimit is the allowed requests per second. 0 means unlimited.
	RateLimit float64
	// MaxConcurrent caps in-flight requests. 0 means unlimited.
	MaxConcurrent int
}

// Node wraps one endpoint and tracks its health
type Node struct {
	config NodeConfig
	caller Caller

	limiter   *rate.Limiter
	semaphore chan struct{}

	// Dynamic metrics (atomic operations)
	errorCount  uint64 // Consecutive error count
	totalErrors uint64 // Total error count
	latency     int64  // Average latency (ms)
	latestBlock uint64 // Latest block height observed by this node
	brokenUntil int64  // Unix nanos until which the circuit stays open
}

// NewNode dials the endpoint (HTTP, WebSocket or IPC)
func NewNode(ctx context.Context, cfg NodeConfig) (*Node, error) {
	c, err := gethrpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return NewNodeWithCaller(cfg, c), nil
}

// NewNodeWithCaller initializes a Node with a pre-created caller (Testing/DI)
func NewNodeWithCaller(cfg NodeConfig, c Caller) *Node {
	n := &Node{
		config: cfg,
		caller: c,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.MaxConcurrent > 0 {
		n.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return n
}

// URL returns the node address
func (n *Node) URL() string {
	return n.config.URL
}

// Priority returns the configured weight
func (n *Node) Priority() int {
	return n.config.Priority
}

// Score calculates the real-time score of the node. Higher is better.
// Formula: (Priority * 100) - (Latency / 10) - (ConsecutiveErrors * 500)
// Points are also deducted if the node lags too far behind the global max height.
func (n *Node) Score(globalMaxHeight uint64) int64 {
	score := int64(n.config.Priority) * 100

	// 200ms latency = -20 points
	score -= atomic.LoadInt64(&n.latency) / 10

	score -= int64(atomic.LoadUint64(&n.errorCount)) * 500

	myHeight := atomic.LoadUint64(&n.latestBlock)
	if globalMaxHeight > 0 && myHeight < globalMaxHeight {
		lag := globalMaxHeight - myHeight
		if lag > 5 {
			score -= int64(lag) * 50
		}
	}

	return score
}

// RecordMetric records the result of a call, updating latency, error count
// and the circuit state. Only transport failures count as errors.
func (n *Node) RecordMetric(start time.Time, err error) {
	duration := time.Since(start).Milliseconds()

	// Moving average, new sample weighs 20%
	oldLatency := atomic.LoadInt64(&n.latency)
	if oldLatency == 0 {
		atomic.StoreInt64(&n.latency, duration)
	} else {
		atomic.StoreInt64(&n.latency, (oldLatency*8+duration*2)/10)
	}

	if err != nil {
		errs := atomic.AddUint64(&n.errorCount, 1)
		atomic.AddUint64(&n.totalErrors, 1)
		if errs >= circuitBreakThreshold {
			atomic.StoreInt64(&n.brokenUntil, time.Now().Add(circuitCooldown).UnixNano())
		}
		return
	}
	// Decrease slowly on success to avoid jitter
	if current := atomic.LoadUint64(&n.errorCount); current > 0 {
		atomic.StoreUint64(&n.errorCount, current-1)
	}
}

// UpdateHeight records a newer block height seen on this node
func (n *Node) UpdateHeight(h uint64) {
	for {
		current := atomic.LoadUint64(&n.latestBlock)
		if h <= current || atomic.CompareAndSwapUint64(&n.latestBlock, current, h) {
			return
		}
	}
}

// MeetsHeightRequirement reports whether the node has seen block h.
func (n *Node) MeetsHeightRequirement(h uint64) bool {
	return atomic.LoadUint64(&n.latestBlock) >= h
}

// IsCircuitBroken reports whether the node is cooling down after repeated failures.
func (n *Node) IsCircuitBroken() bool {
	return time.Now().UnixNano() < atomic.LoadInt64(&n.brokenUntil)
}

// TryAcquire reserves a request slot without blocking. Call Release when done.
func (n *Node) TryAcquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.IsCircuitBroken() {
		return ErrCircuitBroken
	}
	if n.limiter != nil && !n.limiter.Allow() {
		return ErrRateLimitExceeded
	}
	if n.semaphore != nil {
		select {
		case n.semaphore <- struct{}{}:
		default:
			return ErrNodeBusy
		}
	}
	return nil
}

// Acquire is the blocking form of TryAcquire.
func (n *Node) Acquire(ctx context.Context) error {
	if n.IsCircuitBroken() {
		return ErrCircuitBroken
	}
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if n.semaphore != nil {
		select {
		case n.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Release frees the slot taken by TryAcquire or Acquire.
func (n *Node) Release() {
	if n.semaphore != nil {
		select {
		case <-n.semaphore:
		default:
		}
	}
}

// GetErrorCount returns the current consecutive error count
func (n *Node) GetErrorCount() uint64 {
	return atomic.LoadUint64(&n.errorCount)
}

// GetTotalErrors returns the total error count
func (n *Node) GetTotalErrors() uint64 {
	return atomic.LoadUint64(&n.totalErrors)
}

// GetLatency returns the average latency in ms
func (n *Node) GetLatency() int64 {
	return atomic.LoadInt64(&n.latency)
}

// GetLatestBlock returns the latest block height observed by this node
func (n *Node) GetLatestBlock() uint64 {
	return atomic.LoadUint64(&n.latestBlock)
}

// CallContext sends one request to this node and records its outcome.
func (n *Node) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := n.caller.CallContext(ctx, result, method, args...)
	n.RecordMetric(start, transportFailure(err))
	observeCall(n.config.URL, method, start, err)
	return err
}

// BlockNumber asks the node for its head and remembers it.
func (n *Node) BlockNumber(ctx context.Context) (uint64, error) {
	var h hexutil.Uint64
	if err := n.CallContext(ctx, &h, "eth_blockNumber"); err != nil {
		return 0, err
	}
	n.UpdateHeight(uint64(h))
	nodeHeight.WithLabelValues(n.config.URL).Set(float64(h))
	return uint64(h), nil
}

func (n *Node) Close() {
	n.caller.Close()
}

// transportFailure drops errors that mean the node answered: a JSON-RPC
// error response says nothing about node health.
func transportFailure(err error) error {
	var rpcErr gethrpc.Error
	if err == nil || errors.As(err, &rpcErr) {
		return nil
	}
	return err
}
