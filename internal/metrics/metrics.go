package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Naming convention: namespace_subsystem_name
// - namespace: impermachat (application-level grouping)
// - subsystem: room, stream, chat (feature-level grouping)
//
// Metric Types:
// - Gauge: current state (rooms alive, streams open)
// - Counter: cumulative events (messages, expirations, dropped events)

var (
	// ActiveRooms tracks the current number of live rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "impermachat",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live rooms",
	})

	// RoomsExpired tracks rooms removed by the expiration sweep (Counter - cumulative)
	RoomsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "impermachat",
		Subsystem: "room",
		Name:      "expired_total",
		Help:      "Total rooms removed after their lifetime elapsed",
	})

	// ActiveStreams tracks open event streams across all rooms (Gauge - current state)
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "impermachat",
		Subsystem: "stream",
		Name:      "streams_active",
		Help:      "Current number of open event streams",
	})

	// EventsPublished tracks room events fanned out to streams (CounterVec - cumulative per action)
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "impermachat",
		Subsystem: "stream",
		Name:      "events_total",
		Help:      "Total room events published to streams",
	}, []string{"action"})

	// EventsDropped tracks events lost to slow stream consumers (Counter - cumulative)
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "impermachat",
		Subsystem: "stream",
		Name:      "events_dropped_total",
		Help:      "Total events dropped because a stream could not keep up",
	})

	// MessagesTotal tracks chat messages accepted into room history (Counter - cumulative)
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "impermachat",
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Total chat messages accepted",
	})
)

func IncStream() {
	ActiveStreams.Inc()
}

func DecStream() {
	ActiveStreams.Dec()
}
