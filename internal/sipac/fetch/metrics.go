package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipac_fetch_attempts_total",
			Help: "Total number of portal page requests by result",
		},
		[]string{"result"}, // "success", "expired", "error"
	)

	fetchExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sipac_fetch_exhausted_total",
			Help: "Total number of fetches that gave up",
		},
	)

	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sipac_fetch_duration_seconds",
			Help:    "Duration of whole fetches including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
)
