// Package services – Prometheus instrumentation
//
// Bot-level counters complementing the HTTP middleware metrics: how many
// events the router processed (by kind and outcome), key issuance and
// redemption volume, and broadcast delivery results.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// eventsProcessed counts inbound events by kind and outcome.
	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_total",
			Help: "Total number of inbound bot events processed.",
		},
		[]string{"kind", "outcome"},
	)

	// keysIssued counts premium keys generated by the admin.
	keysIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_keys_issued_total",
			Help: "Total number of premium keys issued.",
		},
	)

	// keysRedeemed counts successful single-use key consumptions.
	keysRedeemed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_keys_redeemed_total",
			Help: "Total number of premium keys consumed.",
		},
	)

	// broadcastDeliveries counts per-recipient broadcast sends by result.
	broadcastDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_broadcast_deliveries_total",
			Help: "Total number of broadcast delivery attempts.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(eventsProcessed, keysIssued, keysRedeemed, broadcastDeliveries)
}
