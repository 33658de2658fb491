// Package metrics exposes Prometheus collectors for the ingestion service.
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
	fetchAttemptsTotal         *prometheus.CounterVec
	throttleDelaySeconds       *prometheus.HistogramVec
	parserSelectionsTotal      *prometheus.CounterVec
	rowsTotal                  *prometheus.CounterVec
	rowRejectionsTotal         *prometheus.CounterVec
	discoveryProviderTotal     *prometheus.CounterVec
	importsTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setops_fetch_attempts_total",
				Help: "Total number of source fetch attempts, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		throttleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "setops_throttle_delay_seconds",
				Help:    "Histogram of per-host throttle waits.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 3, 6},
			},
			[]string{"host"},
		)

		parserSelectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setops_parser_selections_total",
				Help: "Total number of payloads parsed, labeled by the parser that produced rows.",
			},
			[]string{"parser"},
		)

		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setops_rows_total",
				Help: "Total number of normalized rows, labeled by quality outcome.",
			},
			[]string{"outcome"},
		)

		rowRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setops_row_rejections_total",
				Help: "Total number of rejected rows, labeled by rejection reason.",
			},
			[]string{"reason"},
		)

		discoveryProviderTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setops_discovery_provider_total",
				Help: "Total number of discovery provider calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		importsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setops_imports_total",
				Help: "Total number of import attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
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
	Init()
	return promhttp.Handler()
}

// ObserveFetchAttempt records one fetch attempt against a source URL.
func ObserveFetchAttempt(rawURL string, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveThrottleDelay records the duration of a per-host throttle wait.
func ObserveThrottleDelay(host string, duration time.Duration) {
	Init()
	throttleDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveParser records which parser produced rows.
func ObserveParser(parser string) {
	Init()
	parserSelectionsTotal.WithLabelValues(parser).Inc()
}

// ObserveRows records accepted and rejected row counts plus the rejection histogram.
func ObserveRows(accepted, rejected int, reasons map[string]int) {
	Init()
	if accepted > 0 {
		rowsTotal.WithLabelValues("accepted").Add(float64(accepted))
	}
	if rejected > 0 {
		rowsTotal.WithLabelValues("rejected").Add(float64(rejected))
	}
	for reason, n := range reasons {
		rowRejectionsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveDiscoveryProvider records the outcome of one provider call.
func ObserveDiscoveryProvider(provider, outcome string) {
	Init()
	discoveryProviderTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveImport increments the import counter for the given outcome.
func ObserveImport(outcome string) {
	Init()
	importsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
