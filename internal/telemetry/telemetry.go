// Package telemetry holds the server's prometheus collectors.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "beatsync",
		Name:      "connections",
		Help:      "Open websocket connections.",
	})

	RoomsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beatsync",
		Name:      "rooms_joined_total",
		Help:      "Successful room joins.",
	})

	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beatsync",
		Name:      "events_total",
		Help:      "Websocket events received, by type.",
	}, []string{"type"})

	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beatsync",
		Name:      "event_errors_total",
		Help:      "Websocket events whose handler failed, by type.",
	}, []string{"type"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
