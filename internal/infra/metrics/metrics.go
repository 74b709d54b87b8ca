package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "The total number of requests sent to the news provider",
		},
		[]string{"endpoint", "outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Duration of news provider requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_lookups_total",
			Help: "Query cache subscriptions by outcome (hit, shared, miss)",
		},
		[]string{"endpoint", "result"},
	)

	CacheFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_fetches_total",
			Help: "Fetches started by the query cache, by final outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	CacheRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_retries_total",
			Help: "Retries of transient network failures",
		},
		[]string{"endpoint"},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_cache_evictions_total",
			Help: "Unused entries evicted after the retention window",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "query_cache_entries",
			Help: "Number of entries currently held by the query cache",
		},
	)

	CategoryResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "category_resolutions_total",
			Help: "Category URI resolutions by outcome",
		},
		[]string{"outcome"},
	)

	SearchTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_state_transitions_total",
			Help: "Search coordinator transitions by target state",
		},
		[]string{"state"},
	)

	StaleResponsesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_stale_responses_discarded_total",
			Help: "Responses dropped because their intent was superseded",
		},
		[]string{"kind"},
	)

	URLCommits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "url_commits_total",
			Help: "History entries written by the URL synchronizer",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_sessions_active",
			Help: "Number of mounted search sessions",
		},
	)

	SearchEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_events_published_total",
			Help: "Search events written to Kafka",
		},
		[]string{"status"},
	)
)
