// Package metrics exposes process-wide Prometheus collectors for the crawler:
// oracle calls, politeness delays, worker activity and the ops HTTP server.
// Location-level progress collectors live in progress/sinks.
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
	oracleCallsTotal           *prometheus.CounterVec
	oracleCallDurationSeconds  *prometheus.HistogramVec
	oracleTokensTotal          *prometheus.CounterVec
	auditWriteFailuresTotal    prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	once.Do(func() {
		oracleCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artist_crawler_oracle_calls_total",
				Help: "Oracle calls by kind (decide, extract) and result.",
			},
			[]string{"kind", "result"},
		)
		oracleCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "artist_crawler_oracle_call_duration_seconds",
				Help:    "Latency of oracle calls by kind.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"kind"},
		)
		oracleTokensTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artist_crawler_oracle_tokens_total",
				Help: "Tokens consumed by oracle calls, by kind and direction (input, output).",
			},
			[]string{"kind", "direction"},
		)
		auditWriteFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "artist_crawler_audit_write_failures_total",
				Help: "Audit log rows that could not be written.",
			},
		)
		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "artist_crawler_active_workers",
				Help: "Workers currently crawling a location.",
			},
		)
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "artist_crawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artist_crawler_http_requests_total",
				Help: "Ops server requests by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "artist_crawler_http_request_duration_seconds",
				Help:    "Ops server latency by method and route.",
				Buckets: []float64{0.005, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite reduces a URL to a lowercase hostname for use as a label.
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

// ObserveOracleCall records one oracle call.
func ObserveOracleCall(kind string, err error, duration time.Duration) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	oracleCallsTotal.WithLabelValues(kind, result).Inc()
	oracleCallDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveOracleTokens adds token usage for one call.
func ObserveOracleTokens(kind string, input, output int64) {
	Init()
	if input > 0 {
		oracleTokensTotal.WithLabelValues(kind, "input").Add(float64(input))
	}
	if output > 0 {
		oracleTokensTotal.WithLabelValues(kind, "output").Add(float64(output))
	}
}

// ObserveAuditWriteFailure counts an audit row that could not be persisted.
func ObserveAuditWriteFailure() {
	Init()
	auditWriteFailuresTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the ops server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
