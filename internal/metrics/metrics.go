package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently open WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatcore_ws_connections",
		Help: "Number of open WebSocket connections.",
	})

	// MessagesPersisted counts messages accepted through either ingress path.
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_messages_persisted_total",
		Help: "Messages persisted via the channel or fallback path.",
	})

	// EventsDelivered counts events enqueued to subscriber connections.
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_events_delivered_total",
		Help: "Events enqueued for delivery to subscribers.",
	})

	// EventsDropped counts events discarded because a subscriber's send
	// buffer was full.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_events_dropped_total",
		Help: "Events dropped due to slow subscribers.",
	})

	// NotificationsCreated counts persisted notification records.
	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_notifications_created_total",
		Help: "Notification records created by fan-out.",
	})
)
