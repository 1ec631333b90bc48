package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Deletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welcomebot_deletions_total",
			Help: "Scheduled message deletions by outcome.",
		},
		[]string{"outcome"},
	)

	PendingDeletions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "welcomebot_pending_deletions",
			Help: "Scheduled deletions currently armed.",
		},
	)

	CleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welcomebot_cleanup_runs_total",
			Help: "Bulk cleanup runs by trigger.",
		},
		[]string{"trigger"},
	)

	CleanupMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welcomebot_cleanup_messages_total",
			Help: "Messages visited by bulk cleanup, by result.",
		},
		[]string{"result"},
	)

	WaitCaptures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "welcomebot_wait_captures_total",
			Help: "Inbound messages evaluated by the waiting-input state machine, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(Deletions)
	prometheus.MustRegister(PendingDeletions)
	prometheus.MustRegister(CleanupRuns)
	prometheus.MustRegister(CleanupMessages)
	prometheus.MustRegister(WaitCaptures)
}
