package rpc

import (
	"context"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Transport sends one JSON-RPC request and decodes its result. Connection
// handling, TLS, timeouts and reconnection all live behind this interface.
// *gethrpc.Client and *transport.Pool both satisfy it.
type Transport interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// Dial connects to an HTTP, WebSocket or IPC endpoint.
func Dial(ctx context.Context, url string) (Transport, error) {
	return gethrpc.DialContext(ctx, url)
}
