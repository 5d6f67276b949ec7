// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nakit"

var (
	// SequenceReservations counts reserve calls by operation and outcome.
	SequenceReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "reservations_total",
			Help:      "Sequence range reservations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// SequenceNumbersIssued counts individual sequence numbers handed out.
	SequenceNumbersIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sequence",
		Name:      "numbers_issued_total",
		Help:      "Sequence numbers issued across all branch/category pairs.",
	})

	// SequenceReserveDuration observes the time spent holding a pair lock.
	SequenceReserveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sequence",
		Name:      "reserve_duration_seconds",
		Help:      "Duration of sequence reservations in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// LoginAttempts counts authentication attempts by result.
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result (success, upgraded, failed).",
		},
		[]string{"result"},
	)

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

// Outcome labels for SequenceReservations.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Login result labels.
const (
	LoginSuccess  = "success"
	LoginUpgraded = "upgraded"
	LoginFailed   = "failed"
)

// ObserveRequest records one served HTTP request.
func ObserveRequest(method string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
