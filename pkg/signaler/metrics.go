package signaler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_sessions",
		Help: "Number of open websocket sessions.",
	})
	metricRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_rooms",
		Help: "Number of non-empty rooms.",
	})
	metricJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_joins_total",
		Help: "Number of processed room joins.",
	})
	metricLeaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_leaves_total",
		Help: "Number of processed room leaves.",
	})
	metricForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_forwarded_total",
		Help: "Number of forwarded signaling messages by kind.",
	}, []string{"kind"})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_dropped_total",
		Help: "Number of messages dropped because the target was gone or stalled.",
	})
	metricMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_malformed_total",
		Help: "Number of rejected malformed messages.",
	})
)
