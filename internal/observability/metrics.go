package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hailing", Name: "drivers_online", Help: "Number of online drivers"})

	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "candidate_searches_total", Help: "Candidate searches by outcome"},
		[]string{"outcome"}, // found, exhausted, error
	)
	SearchRings = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_hailing",
		Name:      "candidate_search_rings",
		Help:      "Ring radius at which a search stopped",
		Buckets:   prometheus.LinearBuckets(1, 1, 8),
	})

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "claims_total", Help: "Ride claim attempts by outcome"},
		[]string{"outcome"},
	)
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "transitions_total", Help: "Ride transitions by target status and outcome"},
		[]string{"target", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hailing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
