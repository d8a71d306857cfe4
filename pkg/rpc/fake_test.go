package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type handlerFunc func(args []interface{}) (interface{}, error)

type recordedCall struct {
	method string
	args   []interface{}
}

// fakeTransport answers calls from per-method handlers and round-trips the
// result through JSON like a real connection would.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    []recordedCall
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]handlerFunc)}
}

func (f *fakeTransport) on(method string, h handlerFunc) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
	return f
}

func (f *fakeTransport) reply(method string, v interface{}) *fakeTransport {
	return f.on(method, func([]interface{}) (interface{}, error) { return v, nil })
}

func (f *fakeTransport) fail(method string, err error) *fakeTransport {
	return f.on(method, func([]interface{}) (interface{}, error) { return nil, err })
}

func (f *fakeTransport) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: method, args: args})
	h := f.handlers[method]
	f.mu.Unlock()

	if h == nil {
		return fmt.Errorf("method %s not found", method)
	}
	v, err := h(args)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, result)
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) callsTo(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// nodeError is what a node-side JSON-RPC error looks like to the client.
type nodeError struct {
	code int
	msg  string
}

func (e nodeError) Error() string  { return e.msg }
func (e nodeError) ErrorCode() int { return e.code }

func paramJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
