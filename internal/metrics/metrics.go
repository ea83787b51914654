// Package metrics defines the Prometheus collectors shared by every pool in
// a registry. internal/pool records into these on every state transition,
// under the pool lock, mirroring the same counters returned by
// pool.StatsSnapshot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks the number of in-use connections per pool.
	ConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docpool_connections_active",
		Help: "Number of in-use connections per pool",
	}, []string{"pool_name"})

	// ConnectionsIdle tracks the number of idle connections per pool.
	ConnectionsIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docpool_connections_idle",
		Help: "Number of idle connections in the pool per pool",
	}, []string{"pool_name"})

	// ConnectionsMax tracks the configured max size per pool.
	ConnectionsMax = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docpool_connections_max",
		Help: "Configured maximum connections per pool",
	}, []string{"pool_name"})

	// ConnectionsTotal counts total connection lifecycle events.
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpool_connections_total",
		Help: "Total connection operations",
	}, []string{"pool_name", "status"})

	// QueueLength tracks the current waiter queue length per pool.
	QueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docpool_queue_length",
		Help: "Number of acquirers waiting for a connection per pool",
	}, []string{"pool_name"})

	// QueueWaitDuration tracks the time acquirers spend waiting in queue.
	QueueWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docpool_queue_wait_seconds",
		Help:    "Time spent waiting in queue for a connection",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"pool_name"})

	// ConnectionErrors counts connection errors by type.
	ConnectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpool_connection_errors_total",
		Help: "Total connection errors",
	}, []string{"pool_name", "error_type"})

	// HealthChecks counts probe outcomes run by the health maintainer.
	HealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpool_health_checks_total",
		Help: "Total health probes run against idle connections",
	}, []string{"pool_name", "result"})

	// RPCDuration tracks RPC execution time through the transport.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docpool_rpc_duration_seconds",
		Help:    "RPC execution duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"pool_name"})
)
