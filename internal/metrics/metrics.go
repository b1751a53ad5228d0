package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postplan_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postplan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postplan_generations_total",
			Help: "Total number of plan generation requests by outcome.",
		},
		[]string{"outcome"},
	)

	BackendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postplan_backend_duration_seconds",
			Help:    "Latency of text generation backend calls in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	UsageCommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "postplan_usage_commit_failures_total",
			Help: "Total number of successful generations whose usage increment could not be persisted.",
		},
	)

	ProfilesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "postplan_profiles_created_total",
			Help: "Total number of profiles created on first use.",
		},
	)

	UsageEventsPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postplan_usage_events_persisted_total",
			Help: "Total number of generation events written to the usage event log.",
		},
		[]string{"event_type"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		BackendDuration,
		UsageCommitFailuresTotal,
		ProfilesCreatedTotal,
		UsageEventsPersistedTotal,
	)
}
