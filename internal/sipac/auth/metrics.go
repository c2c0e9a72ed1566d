package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipac_auth_attempts_total",
			Help: "Total number of CAS handshakes by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	sessionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipac_session_cache_lookups_total",
			Help: "Total number of session cookie lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	sessionInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sipac_session_invalidations_total",
			Help: "Total number of times the cached session was invalidated",
		},
	)
)
