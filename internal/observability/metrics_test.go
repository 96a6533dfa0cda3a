package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEngineCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncBatchStarted("Numbers")
	metrics.IncBatchCompleted("numbers")
	metrics.IncBatchInterrupted("numbers")
	metrics.IncBatchInFlight("numbers")
	metrics.DecBatchInFlight("numbers")
	metrics.IncItemVerified("numbers", "success")
	metrics.IncCacheHit("numbers")
	metrics.IncQuotaDenied("numbers")
	metrics.IncUpstreamRetry("numbers")
	metrics.ObserveVerifyDuration("numbers", 120*time.Millisecond)

	if got := testutil.ToFloat64(metrics.batchesStartedTotal.WithLabelValues("numbers")); got != 1 {
		t.Fatalf("batches_started_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batchesCompletedTotal.WithLabelValues("numbers")); got != 1 {
		t.Fatalf("batches_completed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batchesInFlight.WithLabelValues("numbers")); got != 0 {
		t.Fatalf("batches_in_flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.itemsVerifiedTotal.WithLabelValues("numbers", "success")); got != 1 {
		t.Fatalf("items_verified_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.cacheHitsTotal.WithLabelValues("numbers")); got != 1 {
		t.Fatalf("cache_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.quotaDeniedTotal.WithLabelValues("numbers")); got != 1 {
		t.Fatalf("quota_denied_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.upstreamRetryTotal.WithLabelValues("numbers")); got != 1 {
		t.Fatalf("upstream_retry_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncBatchStarted("numbers")
	metrics.IncItemVerified("numbers", "success")
	metrics.ObserveVerifyDuration("numbers", time.Second)
	metrics.DecBatchInFlight("numbers")
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/healthz", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.IncBatchStarted("numbers")

	server := httptest.NewServer(metrics.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
