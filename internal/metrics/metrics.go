package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "git_agent_requests_total",
			Help: "Total number of protocol requests dispatched",
		},
		[]string{"op"},
	)

	RequestFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "git_agent_request_errors_total",
			Help: "Total number of requests answered with an error",
		},
		[]string{"op"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "git_agent_request_duration_seconds",
			Help:    "Request dispatch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"op"},
	)

	SyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "git_agent_sync_failed_total",
			Help: "Total number of failed repository sync operations",
		},
		[]string{"repo"},
	)

	LastSyncEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "git_agent_last_sync_end_timestamp",
			Help: "Unix timestamp of when the last sync for a repository finished",
		},
		[]string{"repo"},
	)
)
