package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the batch engine.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	batchesStartedTotal     *prometheus.CounterVec
	batchesCompletedTotal   *prometheus.CounterVec
	batchesInterruptedTotal *prometheus.CounterVec
	batchesInFlight         *prometheus.GaugeVec

	itemsVerifiedTotal *prometheus.CounterVec
	cacheHitsTotal     *prometheus.CounterVec
	quotaDeniedTotal   *prometheus.CounterVec
	upstreamRetryTotal *prometheus.CounterVec
	verifyDuration     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "verify_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		batchesStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "batches_started_total",
				Help:      "Total number of batches admitted and started.",
			},
			[]string{"category"},
		),
		batchesCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "batches_completed_total",
				Help:      "Total number of batches that reached completed status.",
			},
			[]string{"category"},
		),
		batchesInterruptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "batches_interrupted_total",
				Help:      "Total number of batch loops checkpointed out by shutdown.",
			},
			[]string{"category"},
		),
		batchesInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "verify_engine",
				Name:      "batches_in_flight",
				Help:      "Current number of actively driven batch loops.",
			},
			[]string{"category"},
		),
		itemsVerifiedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "items_verified_total",
				Help:      "Total number of items verified upstream by result status.",
			},
			[]string{"category", "status"},
		),
		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "cache_hits_total",
				Help:      "Total number of items served from the verification cache.",
			},
			[]string{"category"},
		),
		quotaDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "quota_denied_total",
				Help:      "Total number of batch admissions denied by quota.",
			},
			[]string{"category"},
		),
		upstreamRetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "upstream_retry_total",
				Help:      "Total number of upstream verification retries.",
			},
			[]string{"category"},
		),
		verifyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "verify_engine",
				Name:      "verify_duration_seconds",
				Help:      "Upstream verification duration in seconds, including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.batchesStartedTotal,
		m.batchesCompletedTotal,
		m.batchesInterruptedTotal,
		m.batchesInFlight,
		m.itemsVerifiedTotal,
		m.cacheHitsTotal,
		m.quotaDeniedTotal,
		m.upstreamRetryTotal,
		m.verifyDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncBatchStarted(category string) {
	if m == nil {
		return
	}
	m.batchesStartedTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncBatchCompleted(category string) {
	if m == nil {
		return
	}
	m.batchesCompletedTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncBatchInterrupted(category string) {
	if m == nil {
		return
	}
	m.batchesInterruptedTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncBatchInFlight(category string) {
	if m == nil {
		return
	}
	m.batchesInFlight.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) DecBatchInFlight(category string) {
	if m == nil {
		return
	}
	m.batchesInFlight.WithLabelValues(normalizeLabel(category)).Dec()
}

func (m *Metrics) IncItemVerified(category string, status string) {
	if m == nil {
		return
	}
	m.itemsVerifiedTotal.WithLabelValues(normalizeLabel(category), normalizeLabel(status)).Inc()
}

func (m *Metrics) IncCacheHit(category string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncQuotaDenied(category string) {
	if m == nil {
		return
	}
	m.quotaDeniedTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncUpstreamRetry(category string) {
	if m == nil {
		return
	}
	m.upstreamRetryTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) ObserveVerifyDuration(category string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.verifyDuration.WithLabelValues(normalizeLabel(category)).Observe(seconds)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
