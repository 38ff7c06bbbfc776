// Package metrics provides Prometheus instrumentation for the session core:
// connection churn, event dedup drops, toast lifecycle and outbound traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ConnectionState reports the current transport state as a numeric gauge
	// (0 disconnected, 1 connecting, 2 connected, 3 reconnecting).
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchlink_connection_state",
		Help: "Current realtime transport state",
	})

	// ReconnectsTotal counts reconnection attempts, labeled by outcome:
	// "success", "failure", "exhausted".
	ReconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_reconnects_total",
		Help: "Total reconnection attempts",
	}, []string{"outcome"})

	// EventsTotal counts inbound events, labeled by kind and disposition:
	// "ingested", "duplicate", "invalid".
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_events_total",
		Help: "Total inbound realtime events",
	}, []string{"kind", "disposition"})

	// EmitsTotal counts outbound emissions, labeled by event and disposition:
	// "sent", "dropped".
	EmitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_emits_total",
		Help: "Total outbound channel emissions",
	}, []string{"event", "disposition"})

	// ToastsTotal counts toast lifecycle transitions: "shown", "expired",
	// "dismissed", "duplicate".
	ToastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchlink_toasts_total",
		Help: "Total toast queue transitions",
	}, []string{"disposition"})

	// TypingPeers tracks the number of peers currently flagged typing
	// across all open conversations.
	TypingPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchlink_typing_peers",
		Help: "Peers currently flagged as typing",
	})
)

// Register installs all collectors on the given registry. Passing nil uses
// the default registry.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		ConnectionState,
		ReconnectsTotal,
		EventsTotal,
		EmitsTotal,
		ToastsTotal,
		TypingPeers,
	)
}
