package httphandler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/certregistry/internal/application"
)

const metricsNamespace = "certregistry"

// Metrics holds the Prometheus collectors for the HTTP surface on a private
// registry. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	durations      *prometheus.HistogramVec
	authFailures   *prometheus.CounterVec
	passwordChecks *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed, by route, method and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_failures_total",
			Help:      "Rejected signed requests, by reason.",
		}, []string{"reason"}),
		passwordChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "password_checks_total",
			Help:      "Application password checks, by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "public_lookup_rate_limited_total",
			Help:      "Public lookups rejected by the per-client rate limiter.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.durations,
		m.authFailures,
		m.passwordChecks,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) authFailure(err error) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(authReason(err)).Inc()
}

func (m *Metrics) passwordCheck(outcome string) {
	if m == nil {
		return
	}
	m.passwordChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) limited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// middleware records request counts and durations. The route label is the
// mux pattern, which ServeMux stores on the request it was handed, so this
// must wrap the mux without replacing the request.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		m.durations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func authReason(err error) string {
	switch {
	case errors.Is(err, application.ErrMissingAuthorization):
		return "missing_authorization"
	case errors.Is(err, application.ErrInvalidAPIKey):
		return "invalid_api_key"
	case errors.Is(err, application.ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, application.ErrTimestampOutOfRange):
		return "timestamp_out_of_range"
	case errors.Is(err, application.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "other"
	}
}
