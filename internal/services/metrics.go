package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes, used as the "outcome" label.
const (
	OutcomeAccepted      = "accepted"
	OutcomeReplayed      = "replayed"
	OutcomeInvalid       = "invalid"
	OutcomeBotRejected   = "bot_rejected"
	OutcomeMisconfigured = "misconfigured"
	OutcomeInProgress    = "in_progress"
	OutcomeFailed        = "failed"
)

var (
	applications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "club_applications_total",
			Help: "Application submissions by outcome.",
		},
		[]string{"outcome"},
	)

	upstreamLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "club_upstream_request_duration_seconds",
			Help:    "Duration of calls to bot verification and the spreadsheet.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(applications, upstreamLat)
}

func observeUpstream(target string, start time.Time) {
	upstreamLat.WithLabelValues(target).Observe(time.Since(start).Seconds())
}
