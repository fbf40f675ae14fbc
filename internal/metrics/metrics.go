// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "telemetry_gateway_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	authRejected prometheus.Counter

	storeCalls   *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	streamChanges *prometheus.CounterVec
)

// Init registers the collectors with the default registry. Safe to call more
// than once. Until Init runs every Observe/Inc helper is a no-op.
func Init() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		)
		authRejected = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "auth_rejected_total",
				Help: "Total requests rejected by the API key check",
			},
		)

		storeCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_calls_total",
				Help: "Total table store calls by operation and result",
			},
			[]string{"operation", "result"},
		)
		storeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "store_call_duration_seconds",
				Help:    "Table store call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)

		streamChanges = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_changes_total",
				Help: "Total change-feed records exported by event type",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			httpRequests,
			httpLatency,
			authRejected,
			storeCalls,
			storeLatency,
			streamChanges,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records an HTTP request's status and duration.
func ObserveRequest(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(route, method).Observe(duration.Seconds())
	}
}

// IncAuthRejected counts a rejected request.
func IncAuthRejected() {
	if authRejected != nil {
		authRejected.Inc()
	}
}

// ObserveStoreCall records a store call's result and duration.
func ObserveStoreCall(operation string, err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if storeCalls != nil {
		storeCalls.WithLabelValues(operation, result).Inc()
	}
	if storeLatency != nil {
		storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// IncStreamChange counts an exported change-feed record.
func IncStreamChange(event string) {
	if event == "" {
		event = "unknown"
	}
	if streamChanges != nil {
		streamChanges.WithLabelValues(event).Inc()
	}
}
