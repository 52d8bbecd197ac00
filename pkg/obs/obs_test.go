package obs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil Metrics when disabled")
	}
}

func TestNewMetricsEnabledBuildsInstruments(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "a2ahost_test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatalf("expected non-nil Metrics when enabled")
	}

	m.RecordQueueDepth(context.Background(), 1)
	m.RecordQueueDepth(context.Background(), -1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty metrics exposition body")
	}
}

func TestRecordQueueDepthNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordQueueDepth(context.Background(), 1)
}

func TestInitGlobalTracerDisabledIsNoop(t *testing.T) {
	tp, shutdown, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatalf("expected non-nil no-op tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown to succeed: %v", err)
	}
}

func TestHTTPMiddlewareRecordsRequestWithoutMetrics(t *testing.T) {
	handler := HTTPMiddleware("test", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tasks/123", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
}

func TestHTTPMiddlewarePreservesFlusher(t *testing.T) {
	handler := HTTPMiddleware("test", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Errorf("expected wrapped ResponseWriter to still implement http.Flusher")
			return
		}
		w.(http.Flusher).Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/message:stream", nil))
	if !rec.Flushed {
		t.Fatalf("expected the underlying recorder to observe a flush")
	}
}

func TestHTTPMiddlewareRecordsRequestWithMetrics(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "a2ahost_mw_test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler := HTTPMiddleware("test", m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tasks/123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if metricsRec.Body.Len() == 0 {
		t.Fatalf("expected recorded request metric in exposition body")
	}
}
