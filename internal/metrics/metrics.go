package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_rooms",
		Help: "Number of rooms with at least one connected participant",
	})

	RoomsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_rooms_created_total",
		Help: "Total number of rooms created",
	})

	ActiveParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_participants",
		Help: "Number of connected participants across all rooms",
	})

	ParticipantsJoinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_participants_joined_total",
		Help: "Total number of participant joins",
	})

	MessagesRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_messages_relayed_total",
		Help: "Total signaling messages forwarded to a targeted recipient",
	}, []string{"type"})

	MessagesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_messages_dropped_total",
		Help: "Total signaling messages dropped at the relay boundary",
	}, []string{"reason"}) // "malformed" | "unknown_recipient"

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_broadcasts_total",
		Help: "Total room-wide broadcasts sent",
	}, []string{"type"})

	ForcedDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_forced_disconnects_total",
		Help: "Total participants disconnected through the admin bridge",
	})

	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "huddle_participant_connection_duration_seconds",
		Help:    "Duration of participant signaling streams",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
	})

	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_config_reloads_total",
		Help: "Number of configuration reloads",
	})
)
