package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "transport",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the control listener.",
		},
	)
	connSucceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "transport",
			Name:      "connections_succeeded_total",
			Help:      "Connections that completed a request/response exchange.",
		},
	)
	connFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "transport",
			Name:      "connections_failed_total",
			Help:      "Connections dropped during handshake or framing.",
		},
	)
	connActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridgectl",
			Subsystem: "transport",
			Name:      "connections_active",
			Help:      "Currently open control connections.",
		},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Control requests by endpoint and status.",
		},
		[]string{"instance", "endpoint", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "control",
			Name:      "request_duration_seconds",
			Help:      "Control request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"instance", "endpoint", "status"},
	)
	bridgeDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "queue_depth",
			Help:      "Units of work waiting for the host thread.",
		},
	)
	bridgeDispatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "dispatches_total",
			Help:      "Units of work executed on the host thread.",
		},
	)
	bridgeTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "wait_timeouts_total",
			Help:      "Caller waits that expired before the host produced a result.",
		},
	)
	peerQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "peers",
			Name:      "queries_total",
			Help:      "Outbound peer queries by result.",
		},
		[]string{"instance", "success"},
	)
	peerQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "peers",
			Name:      "query_duration_seconds",
			Help:      "Outbound peer query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"instance", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connAccepted, connSucceeded, connFailed, connActive,
			requests, requestDuration,
			bridgeDepth, bridgeDispatches, bridgeTimeouts,
			peerQueries, peerQueryDuration,
		)
	})
}

func ConnAccepted() {
	RegisterMetrics()
	connAccepted.Inc()
	connActive.Inc()
}

func ConnClosed(succeeded bool) {
	RegisterMetrics()
	connActive.Dec()
	if succeeded {
		connSucceeded.Inc()
	} else {
		connFailed.Inc()
	}
}

func RecordRequest(instance, endpoint string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	requests.WithLabelValues(instance, endpoint, statusLabel).Inc()
	requestDuration.WithLabelValues(instance, endpoint, statusLabel).Observe(duration.Seconds())
}

func SetBridgeDepth(n int) {
	RegisterMetrics()
	bridgeDepth.Set(float64(n))
}

func BridgeDispatched() {
	RegisterMetrics()
	bridgeDispatches.Inc()
}

func BridgeWaitTimedOut() {
	RegisterMetrics()
	bridgeTimeouts.Inc()
}

func RecordPeerQuery(instance string, success bool, duration time.Duration) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	peerQueries.WithLabelValues(instance, successLabel).Inc()
	peerQueryDuration.WithLabelValues(instance, successLabel).Observe(duration.Seconds())
}
