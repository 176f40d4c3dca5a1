// Package metrics provides Prometheus instrumentation for the Study Chat
// server. It exposes gauges for connection, identity, and room counts,
// counters for message throughput, and a histogram for broadcast latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of open WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studychat_connections_total",
		Help: "Current number of open WebSocket connections",
	})

	// AnnouncedIdentities tracks the number of connections that have
	// announced an identity.
	AnnouncedIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studychat_announced_identities",
		Help: "Current number of connections with an announced identity",
	})

	// ActiveRooms tracks the number of rooms with at least one member.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studychat_active_rooms",
		Help: "Current number of rooms with at least one member",
	})

	// MessagesTotal counts chat messages processed, labeled by outcome:
	// "sent" or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studychat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// FramesDropped counts outbound frames dropped by full per-connection
	// queues.
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studychat_frames_dropped_total",
		Help: "Outbound frames dropped due to full per-connection queues",
	})

	// BroadcastLatency records message fan-out latency in seconds.
	BroadcastLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "studychat_broadcast_latency_seconds",
		Help:    "Room broadcast fan-out latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		AnnouncedIdentities,
		ActiveRooms,
		MessagesTotal,
		FramesDropped,
		BroadcastLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
