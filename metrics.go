package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the application
type Metrics struct {
	// Peer connection metrics
	ConnectedPeers  *prometheus.GaugeVec
	MessageReceived *prometheus.CounterVec
	MessageSent     *prometheus.CounterVec

	// Request pipeline metrics
	RPCRequests      *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	PendingApprovals prometheus.Gauge
	DroppedRequests  prometheus.Counter

	// Session metrics
	Sessions       *prometheus.CounterVec
	ActiveSessions prometheus.Gauge

	// Transaction metrics
	BroadcastTransactions *prometheus.CounterVec

	// Request history metrics
	StoredRequests *prometheus.GaugeVec
}

// NewMetrics initializes and registers Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers Prometheus metrics with a custom registry
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ConnectedPeers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wcnode_connected_peers",
			Help: "The current number of connected peers by role",
		},
			[]string{"role"},
		),
		MessageReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wcnode_peer_messages_received_total",
			Help: "The total number of messages received from peers",
		},
			[]string{"role", "method"},
		),
		MessageSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wcnode_peer_messages_sent_total",
			Help: "The total number of messages sent to peers",
		},
			[]string{"role"},
		),
		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wcnode_rpc_requests_total",
			Help: "The total number of dApp requests by method and outcome",
		},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wcnode_request_duration_seconds",
			Help:    "Time from receiving a dApp request to its terminal result",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 300},
		},
			[]string{"method"},
		),
		PendingApprovals: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wcnode_pending_approvals",
			Help: "The number of requests waiting for a user decision",
		}),
		DroppedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "wcnode_duplicate_requests_dropped_total",
			Help: "The total number of redelivered requests dropped by the duplicate guard",
		}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wcnode_sessions_total",
			Help: "The total number of session proposals by outcome",
		},
			[]string{"outcome"},
		),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wcnode_active_sessions",
			Help: "The number of stored WalletConnect sessions",
		}),
		BroadcastTransactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wcnode_broadcast_transactions_total",
			Help: "The total number of broadcast transactions by chain and outcome",
		},
			[]string{"chain_id", "status"},
		),
		StoredRequests: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wcnode_stored_requests",
			Help: "The number of recorded requests by status",
		},
			[]string{"status"},
		),
	}
}

// RecordMetricsPeriodically refreshes the gauges derived from the database until ctx is done.
func (m *Metrics) RecordMetricsPeriodically(ctx context.Context, requests *RequestStore, sessions *SessionStore, logger Logger) {
	logger = logger.NewSystem("metrics")
	dbTicker := time.NewTicker(15 * time.Second)
	defer dbTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dbTicker.C:
			m.UpdateRequestMetrics(requests, logger)
			m.UpdateSessionMetrics(sessions, logger)
		}
	}
}

// UpdateRequestMetrics updates the stored request gauges from the database
func (m *Metrics) UpdateRequestMetrics(requests *RequestStore, logger Logger) {
	counts, err := requests.CountByStatus()
	if err != nil {
		logger.Error("failed to count requests", "error", err)
		return
	}

	m.StoredRequests.Reset()
	for status, count := range counts {
		m.StoredRequests.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (m *Metrics) UpdateSessionMetrics(sessions *SessionStore, logger Logger) {
	count, err := sessions.Count()
	if err != nil {
		logger.Error("failed to count sessions", "error", err)
		return
	}
	m.ActiveSessions.Set(float64(count))
}
