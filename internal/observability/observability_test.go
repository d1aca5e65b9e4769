package observability_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/pgx404/RegretMarket/internal/observability"
)

func TestHealthChecker(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before ready: got %d, want 503", rec.Code)
	}

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("after ready: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness: got %d, want 200", rec.Code)
	}
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	// Two registries must not collide.
	m1 := observability.NewMetrics(prometheus.NewRegistry())
	m2 := observability.NewMetrics(prometheus.NewRegistry())

	m1.OpsApplied.WithLabelValues("open_position").Inc()
	if got := testutil.ToFloat64(m1.OpsApplied.WithLabelValues("open_position")); got != 1 {
		t.Errorf("m1: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m2.OpsApplied.WithLabelValues("open_position")); got != 0 {
		t.Errorf("m2: got %v, want 0", got)
	}

	m1.SetChannelMetrics("persist", 5, 10)
	if got := testutil.ToFloat64(m1.ChannelUtilization.WithLabelValues("persist")); got != 0.5 {
		t.Errorf("utilization: got %v, want 0.5", got)
	}
}

func TestNewLoggerWithLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerWithLevel("processor", zerolog.WarnLevel, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("op", "open_position").Msg("rejected")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "processor" || line["op"] != "open_position" {
		t.Errorf("got %v", line)
	}
}
