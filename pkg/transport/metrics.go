package transport

import (
	"errors"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-node request counters and latencies.

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evmtx",
		Subsystem: "transport",
		Name:      "requests_total",
		Help:      "Total JSON-RPC requests by node, method and outcome",
	}, []string{"node", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evmtx",
		Subsystem: "transport",
		Name:      "request_duration_seconds",
		Help:      "JSON-RPC request duration",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"node", "method"})

	nodeHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "evmtx",
		Subsystem: "transport",
		Name:      "node_height",
		Help:      "Latest block height observed per node",
	}, []string{"node"})

	failovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evmtx",
		Subsystem: "transport",
		Name:      "failovers_total",
		Help:      "Requests retried on another node after a transport failure",
	}, []string{"method"})
)

// callStatus is "ok", "node_error" when the node answered with a JSON-RPC
// error, or "transport_error".
func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return "node_error"
	}
	return "transport_error"
}

func observeCall(node, method string, start time.Time, err error) {
	requestsTotal.WithLabelValues(node, method, callStatus(err)).Inc()
	requestDuration.WithLabelValues(node, method).Observe(time.Since(start).Seconds())
}
