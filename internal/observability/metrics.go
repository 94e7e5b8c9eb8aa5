package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PriorityUrgent = "urgent"
	PriorityNormal = "normal"
)

var (
	registerOnce sync.Once

	packetsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "packetwire",
			Subsystem: "decoder",
			Name:      "packets_read_total",
			Help:      "Packets decoded from inbound connections, by priority.",
		},
		[]string{"priority"},
	)
	bytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "packetwire",
			Subsystem: "transport",
			Name:      "bytes_read_total",
			Help:      "Bytes copied from sockets into decoder regions.",
		},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "packetwire",
			Subsystem: "decoder",
			Name:      "errors_total",
			Help:      "Decoder failures that closed a connection.",
		},
		[]string{"kind"},
	)
	connectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "packetwire",
			Subsystem: "transport",
			Name:      "connections_open",
			Help:      "Currently open inbound connections.",
		},
	)
	sinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "packetwire",
			Subsystem: "sink",
			Name:      "failures_total",
			Help:      "Packets a sink could not forward.",
		},
		[]string{"sink"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "packetwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total ops HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "packetwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Ops HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			packetsRead,
			bytesRead,
			decodeErrors,
			connectionsOpen,
			sinkFailures,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordBytesRead(n int) {
	RegisterMetrics()
	bytesRead.Add(float64(n))
}

func RecordDecodeError(kind string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(kind).Inc()
}

func RecordConnectionOpened() {
	RegisterMetrics()
	connectionsOpen.Inc()
}

func RecordConnectionClosed() {
	RegisterMetrics()
	connectionsOpen.Dec()
}

func RecordSinkFailure(sink string) {
	RegisterMetrics()
	sinkFailures.WithLabelValues(sink).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
