// Package metrics provides Prometheus instrumentation for the support chat
// server: gauges for connection, user, and session counts, counters for
// message outcomes, and a histogram for event handler latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// UsersOnline tracks the number of users currently online.
	UsersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_users_online",
		Help: "Current number of users with online status",
	})

	// OpenSessions tracks the number of open chat sessions.
	OpenSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_open_sessions",
		Help: "Current number of open chat sessions",
	})

	// MessagesTotal counts processed messages by outcome: "delivered",
	// "flagged" (delivered with moderation flags), or "dropped" (validation,
	// closed room, rate limit).
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"outcome"})

	// EventLatency records inbound event handling latency in seconds.
	EventLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "supportchat_event_latency_seconds",
		Help:    "Inbound event handling latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		UsersOnline,
		OpenSessions,
		MessagesTotal,
		EventLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
