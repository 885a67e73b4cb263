package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/chat", http.StatusOK)
	c.RecordRequest("/chat", http.StatusOK)
	c.RecordRequest("", http.StatusNotFound)

	if got := testutil.ToFloat64(c.httpRequests.WithLabelValues("/chat", "200")); got != 2 {
		t.Fatalf("requests{/chat,200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpRequests.WithLabelValues("unmatched", "404")); got != 1 {
		t.Fatalf("requests{unmatched,404} = %v, want 1", got)
	}
}

func TestRecordStream(t *testing.T) {
	c := NewCollector()
	done := c.StreamStarted()
	if got := testutil.ToFloat64(c.streamsInFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	done()
	c.RecordStream("openai", "completed", 3, 1500*time.Millisecond)
	c.RecordUpstreamError("openai", "stream")
	c.RecordValidationFailure("too_small")

	if got := testutil.ToFloat64(c.streamsInFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.streamFragments.WithLabelValues("openai")); got != 3 {
		t.Fatalf("fragments = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(c.streamDuration); got != 1 {
		t.Fatalf("duration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(c.upstreamErrors.WithLabelValues("openai", "stream")); got != 1 {
		t.Fatalf("upstream errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.validationFailures.WithLabelValues("too_small")); got != 1 {
		t.Fatalf("validation failures = %v, want 1", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordRequest("/chat", 200)
	c.RecordValidationFailure("x")
	c.RecordStream("p", "completed", 1, time.Second)
	c.RecordUpstreamError("p", "connect")
	c.StreamStarted()()
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/health", http.StatusOK)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), `chatrelay_http_requests_total{route="/health",status="200"} 1`) {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
}
