package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")

	m.RecordRequest("POST", 429)
	m.RecordRequest("POST", 429)
	m.RecordRejection("rate_limit", "too_many_requests")
	m.RecordRateLimitRejection("endpoint")
	m.RecordCacheOperation("fast", "hit")
	m.RecordUpstream("GET", "success", 20*time.Millisecond)
	m.ObserveStage("security", time.Millisecond)
	m.SetCircuitBreakerState("backend", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageRejections.WithLabelValues("rate_limit", "too_many_requests")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitRejection.WithLabelValues("endpoint")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheOperations.WithLabelValues("fast", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("GET", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.circuitBreaker.WithLabelValues("backend")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("GET", 200)
		m.RecordCacheOperation("durable", "miss")
		m.RecordUpstream("GET", "error", time.Second)
	})
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("")
	m.SetBuildInfo("v1", "abc", "now")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "omnigw_build_info")
}
