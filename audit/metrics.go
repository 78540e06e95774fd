package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicehub_api_requests_total",
		Help: "Total number of API requests received",
	}, []string{"method", "endpoint", "internal"})

	apiResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicehub_api_responses_total",
		Help: "Total number of API responses by status",
	}, []string{"method", "endpoint", "status", "internal"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoicehub_api_request_duration_seconds",
		Help:    "Duration of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status", "internal"})

	validationWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicehub_api_validation_warnings_total",
		Help: "Validation failures demoted to warnings by warn-mode routes",
	}, []string{"route"})

	limiterRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoicehub_api_limiter_rejects_total",
		Help: "Requests rejected by the concurrent admission limiter",
	})

	limiterFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoicehub_api_limiter_fail_open_total",
		Help: "Admission checks that failed open on a store error",
	})
)

// ObserveRequest records the metrics triplet for one completed exchange.
func ObserveRequest(method, endpoint, status, internal string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, endpoint, internal).Inc()
	apiResponsesTotal.WithLabelValues(method, endpoint, status, internal).Inc()
	apiRequestDuration.WithLabelValues(method, endpoint, status, internal).Observe(duration.Seconds())
}

// ObserveValidationWarning counts a warn-mode validation failure.
func ObserveValidationWarning(route string) {
	validationWarnings.WithLabelValues(route).Inc()
}

// ObserveLimiterReject counts an admission rejection.
func ObserveLimiterReject() {
	limiterRejects.Inc()
}

// ObserveLimiterFailOpen counts a fail-open admission.
func ObserveLimiterFailOpen() {
	limiterFailOpen.Inc()
}
