package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockCaller answers by JSON-RPC method name: expectations are registered
// with On("eth_blockNumber"), and On("Close") for Close. A non-nil first
// return value is JSON-encoded into the result.
type MockCaller struct {
	mock.Mock

	mu     sync.Mutex
	counts map[string]int
}

func (m *MockCaller) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	m.mu.Lock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
	m.mu.Unlock()

	ret := m.MethodCalled(method)
	if err := ret.Error(1); err != nil {
		return err
	}
	if v := ret.Get(0); v != nil && result != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, result)
	}
	return nil
}

func (m *MockCaller) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

func (m *MockCaller) Close() {
	m.Called()
}

// nodeError mimics a JSON-RPC error response.
type nodeError struct {
	code int
	msg  string
}

func (e nodeError) Error() string  { return e.msg }
func (e nodeError) ErrorCode() int { return e.code }
