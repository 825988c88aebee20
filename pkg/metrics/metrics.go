package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure|locked).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchoice_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// BallotsRecorded counts committed votes per method and channel (user|token).
	BallotsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchoice_ballots_recorded_total",
			Help: "Total number of ballots committed",
		},
		[]string{"method", "channel"},
	)

	// BallotsRejected counts refused submissions by error code.
	BallotsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchoice_ballots_rejected_total",
			Help: "Total number of ballot submissions refused",
		},
		[]string{"code"},
	)

	// InvitationsIssued counts invitations created per survey method.
	InvitationsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchoice_invitations_issued_total",
			Help: "Total number of survey invitations issued",
		},
		[]string{"method"},
	)

	// NotificationsSent counts notification deliveries by kind and result (sent|failed|disabled).
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchoice_notifications_total",
			Help: "Total number of notification emails attempted",
		},
		[]string{"kind", "result"},
	)

	// TallyDuration measures aggregation time per method.
	TallyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupchoice_tally_duration_seconds",
			Help:    "Time spent computing survey results",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupchoice_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
