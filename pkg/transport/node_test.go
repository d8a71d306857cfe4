package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	// Fails to dial an unsupported scheme
	_, err := NewNode(context.Background(), NodeConfig{URL: "invalid-scheme://", Priority: 10})
	assert.Error(t, err)
}

func TestNode_CallContext(t *testing.T) {
	ctx := context.Background()
	caller := new(MockCaller)
	node := NewNodeWithCaller(NodeConfig{URL: "test", Priority: 10}, caller)

	caller.On("eth_blockNumber").Return("0x64", nil).Once()
	h, err := node.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), h)
	assert.Equal(t, uint64(100), node.GetLatestBlock())

	caller.On("eth_chainId").Return("0x144", nil).Once()
	var id string
	require.NoError(t, node.CallContext(ctx, &id, "eth_chainId"))
	assert.Equal(t, "0x144", id)

	// A JSON-RPC error is an answer, not a node failure.
	caller.On("eth_call").Return(nil, nodeError{code: 3, msg: "execution reverted"}).Once()
	err = node.CallContext(ctx, nil, "eth_call")
	assert.EqualError(t, err, "execution reverted")
	assert.Zero(t, node.GetTotalErrors())

	caller.On("eth_gasPrice").Return(nil, errors.New("connection reset")).Once()
	assert.Error(t, node.CallContext(ctx, nil, "eth_gasPrice"))
	assert.Equal(t, uint64(1), node.GetTotalErrors())

	caller.On("Close").Once()
	node.Close()
	caller.AssertExpectations(t)
}

func TestNodeScore(t *testing.T) {
	n := &Node{config: NodeConfig{Priority: 10}}

	// Initial score: 10 * 100 = 1000
	assert.Equal(t, int64(1000), n.Score(0))

	// Latency set to ~100ms: 1000 - 100/10 = 990
	n.RecordMetric(time.Now().Add(-100*time.Millisecond), nil)
	assert.InDelta(t, 990, n.Score(0), 1)

	n2 := &Node{config: NodeConfig{Priority: 10}}
	n2.RecordMetric(time.Now(), errors.New("fail"))
	// 1000 - 0 - 500
	assert.Equal(t, int64(500), n2.Score(0))

	// Success decays the consecutive count
	n2.RecordMetric(time.Now(), nil)
	assert.Zero(t, n2.GetErrorCount())
	assert.Equal(t, uint64(1), n2.GetTotalErrors())
}

func TestNode_ScoreLag(t *testing.T) {
	n := &Node{config: NodeConfig{Priority: 10}}
	n.UpdateHeight(100)
	n.UpdateHeight(90)
	assert.Equal(t, uint64(100), n.GetLatestBlock())
	// Lag 20: 1000 - 20*50 = 0
	assert.Equal(t, int64(0), n.Score(120))
	// Lag within tolerance
	assert.Equal(t, int64(1000), n.Score(104))

	assert.True(t, n.MeetsHeightRequirement(100))
	assert.False(t, n.MeetsHeightRequirement(101))
}

func TestNode_CircuitBreaker(t *testing.T) {
	n := NewNodeWithCaller(NodeConfig{URL: "test", Priority: 1}, new(MockCaller))
	for i := 0; i < circuitBreakThreshold-1; i++ {
		n.RecordMetric(time.Now(), errors.New("fail"))
	}
	assert.False(t, n.IsCircuitBroken())
	assert.NoError(t, n.TryAcquire(context.Background()))

	n.RecordMetric(time.Now(), errors.New("fail"))
	assert.True(t, n.IsCircuitBroken())
	assert.ErrorIs(t, n.TryAcquire(context.Background()), ErrCircuitBroken)
	assert.ErrorIs(t, n.Acquire(context.Background()), ErrCircuitBroken)
}

func TestNode_Admission(t *testing.T) {
	ctx := context.Background()
	n := NewNodeWithCaller(NodeConfig{URL: "test", MaxConcurrent: 1}, new(MockCaller))

	require.NoError(t, n.TryAcquire(ctx))
	assert.ErrorIs(t, n.TryAcquire(ctx), ErrNodeBusy)

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.Acquire(timeout), context.DeadlineExceeded)

	n.Release()
	assert.NoError(t, n.TryAcquire(ctx))
	n.Release()

	canceled, cancelNow := context.WithCancel(ctx)
	cancelNow()
	assert.ErrorIs(t, n.TryAcquire(canceled), context.Canceled)

	limited := NewNodeWithCaller(NodeConfig{URL: "test", RateLimit: 1}, new(MockCaller))
	require.NoError(t, limited.TryAcquire(ctx))
	assert.ErrorIs(t, limited.TryAcquire(ctx), ErrRateLimitExceeded)
}

func TestNodeGetters(t *testing.T) {
	n := &Node{config: NodeConfig{URL: "http://test", Priority: 5}}
	assert.Equal(t, "http://test", n.URL())
	assert.Equal(t, 5, n.Priority())
	assert.Zero(t, n.GetLatency())
}
