// Package metrics exposes Prometheus collectors for the sync core.
// Collectors register against the default registry; the agent serves
// them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersFetched counts orders merged into the local cache.
	OrdersFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordercore_orders_fetched_total",
		Help: "Orders fetched from the backend and merged into the local cache.",
	})

	// OrderFetchErrors counts failed order page fetches.
	OrderFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordercore_order_fetch_errors_total",
		Help: "Order page fetches that failed with a network or decode error.",
	})

	// SplitStatusEvents counts applied split_status_update events.
	SplitStatusEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordercore_split_status_events_total",
		Help: "Participant status events applied to the in-memory split session.",
	})

	// Reconnects counts realtime channel reconnect attempts.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordercore_realtime_reconnects_total",
		Help: "Reconnect attempts made by the realtime status channel.",
	})

	// ConnectionState holds the realtime channel state as an integer:
	// 0 connecting, 1 connected, 2 reconnecting, 3 closed.
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordercore_realtime_connection_state",
		Help: "Current realtime channel state (0 connecting, 1 connected, 2 reconnecting, 3 closed).",
	})

	// OTPReveals counts successful one-time pickup code reveals.
	OTPReveals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordercore_otp_reveals_total",
		Help: "Pickup codes revealed via the one-time reveal gate.",
	})
)
