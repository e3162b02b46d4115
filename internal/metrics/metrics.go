// Package metrics provides Prometheus instrumentation for fund movements and
// gateway reconciliation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrow"

var (
	// FundOperationsTotal counts engine operations by name and outcome
	// ("ok" or an error kind such as "insufficient_funds").
	FundOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fund_operations_total",
			Help:      "Total fund-moving operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	FundOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fund_operation_duration_seconds",
			Help:      "Duration of fund-moving operations including transaction retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// GatewayEventsTotal counts webhook events applied by the reconciler.
	GatewayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_events_total",
			Help:      "Gateway events by gateway, event type and outcome.",
		},
		[]string{"gateway", "type", "outcome"},
	)

	// LockedFundsMinor tracks the amount moved into escrow, in minor units.
	LockedFundsMinor = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locked_funds_minor_total",
			Help:      "Total minor units locked into escrow by currency.",
		},
		[]string{"currency"},
	)

	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_websocket_clients",
			Help:      "Number of connected balance stream clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FundOperationsTotal,
		FundOperationDuration,
		GatewayEventsTotal,
		LockedFundsMinor,
		ActiveWebSocketClients,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
