// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archiverURLsTotal             *prometheus.CounterVec
	archiverServiceResponsesTotal *prometheus.CounterVec
	archiverServiceDuration       *prometheus.HistogramVec
	archiverRateLimitWaitsTotal   prometheus.Counter
	archiverRateLimitWaitSeconds  prometheus.Counter
	archiverStaleFallbacksTotal   prometheus.Counter
	archiverCheckpointsTotal      *prometheus.CounterVec
	archiverCacheEntries          prometheus.Gauge
	archiverQueueDepth            prometheus.Gauge
	archiverPacingDelaySeconds    *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiverURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_urls_total",
				Help: "Total number of input URLs processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		archiverServiceResponsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_service_responses_total",
				Help: "Responses from the archiving service, labeled by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		)

		archiverServiceDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_service_request_duration_seconds",
				Help:    "Latency of archiving service requests, labeled by endpoint.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		)

		archiverRateLimitWaitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_rate_limit_waits_total",
				Help: "Number of backoff waits caused by the service rate limiting captures.",
			},
		)

		archiverRateLimitWaitSeconds = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_rate_limit_wait_seconds_total",
				Help: "Total seconds spent waiting out rate limits.",
			},
		)

		archiverStaleFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_stale_fallbacks_total",
				Help: "Captures refused by the service that were answered with a stale snapshot.",
			},
		)

		archiverCheckpointsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_checkpoints_total",
				Help: "Checkpoint writes, labeled by backend and status.",
			},
			[]string{"backend", "status"},
		)

		archiverCacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_cache_entries",
				Help: "Number of URLs held in the result cache.",
			},
		)

		archiverQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_queue_depth",
				Help: "Number of ingested URLs waiting to be processed.",
			},
		)

		archiverPacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_pacing_delay_seconds",
				Help:    "Histogram of outbound request pacing waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of status server requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOutcome counts one processed input URL.
func ObserveOutcome(outcome string) {
	Init()
	archiverURLsTotal.WithLabelValues(outcome).Inc()
}

// ObserveServiceResponse records a response from the archiving service.
func ObserveServiceResponse(endpoint string, code int, duration time.Duration) {
	Init()
	archiverServiceResponsesTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	archiverServiceDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRateLimitWait records one backoff wait of the given length.
func ObserveRateLimitWait(wait time.Duration) {
	Init()
	archiverRateLimitWaitsTotal.Inc()
	archiverRateLimitWaitSeconds.Add(wait.Seconds())
}

// ObserveStaleFallback counts a refused capture answered with a stale snapshot.
func ObserveStaleFallback() {
	Init()
	archiverStaleFallbacksTotal.Inc()
}

// ObserveCheckpoint records a checkpoint attempt and the resulting cache size.
func ObserveCheckpoint(backend string, err error, entries int) {
	Init()
	status := "ok"
	if err != nil {
		status = "error"
	}
	archiverCheckpointsTotal.WithLabelValues(backend, status).Inc()
	archiverCacheEntries.Set(float64(entries))
}

// SetCacheEntries reports the number of URLs held in the result cache.
func SetCacheEntries(n int) {
	Init()
	archiverCacheEntries.Set(float64(n))
}

// SetQueueDepth reports the number of URLs waiting in the ingestion queue.
func SetQueueDepth(n int) {
	Init()
	archiverQueueDepth.Set(float64(n))
}

// ObservePacingDelay records the duration of an outbound pacing wait.
func ObservePacingDelay(host string, duration time.Duration) {
	Init()
	archiverPacingDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
