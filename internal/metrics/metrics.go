// Package metrics declares the Prometheus collectors for subscriptions,
// callback delivery and RPC traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetodo_subscriptions_active",
			Help: "Subscriptions currently held by registries",
		},
	)
	SubscriptionsRegistered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livetodo_subscriptions_registered_total",
			Help: "Subscriptions added to a registry",
		},
	)
	SubscriptionsTornDown = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livetodo_subscriptions_torn_down_total",
			Help: "Teardown actions invoked by registries",
		},
	)
	CallbacksDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livetodo_callbacks_delivered_total",
			Help: "Change callbacks delivered to watchers",
		},
	)
	CallbackPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livetodo_callback_panics_total",
			Help: "Change callbacks that panicked and were recovered",
		},
	)
	RPCRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetodo_rpc_requests_total",
			Help: "RPC requests handled, by method and outcome",
		},
		[]string{"method", "outcome"},
	)
	RPCConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetodo_rpc_connections",
			Help: "Open RPC connections",
		},
	)
)

func init() {
	prometheus.MustRegister(SubscriptionsActive)
	prometheus.MustRegister(SubscriptionsRegistered)
	prometheus.MustRegister(SubscriptionsTornDown)
	prometheus.MustRegister(CallbacksDelivered)
	prometheus.MustRegister(CallbackPanics)
	prometheus.MustRegister(RPCRequests)
	prometheus.MustRegister(RPCConnections)
}
