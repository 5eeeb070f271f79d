// Package stats holds the process-wide network statistics counters.
// Both sides record bytes through it; the owning network layer dumps the
// totals periodically.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	promBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slipstream",
		Name:      "network_bytes_sent_total",
		Help:      "Bytes written to peers.",
	})
	promBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slipstream",
		Name:      "network_bytes_received_total",
		Help:      "Bytes read from peers.",
	})
)

// RecordBytesSent adds to the sent counter.
func RecordBytesSent(n int) {
	bytesSent.Add(uint64(n))
	promBytesSent.Add(float64(n))
}

// RecordBytesReceived adds to the received counter.
func RecordBytesReceived(n int) {
	bytesReceived.Add(uint64(n))
	promBytesReceived.Add(float64(n))
}

// Dump returns the totals accumulated since the last call and resets them.
// The prometheus counters are cumulative and unaffected.
func Dump() (sent, received uint64) {
	return bytesSent.Swap(0), bytesReceived.Swap(0)
}
