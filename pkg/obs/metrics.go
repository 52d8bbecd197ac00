package obs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig controls whether dispatch-path metrics are recorded and
// exposed.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Metrics holds the OpenTelemetry instruments this host records, backed by
// a Prometheus exporter so /metrics can be scraped directly.
type Metrics struct {
	registry        *prometheus.Registry
	provider        *sdkmetric.MeterProvider
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	queueDepth      metric.Int64UpDownCounter
}

// NewMetrics builds a Metrics instance, or returns (nil, nil) when
// disabled: callers treat a nil *Metrics as "don't record".
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("obs: create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(cfg.Namespace)

	requestsTotal, err := meter.Int64Counter(
		cfg.Namespace+"_dispatch_requests_total",
		metric.WithDescription("Total dispatched requests by method and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: create requests counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		cfg.Namespace+"_dispatch_request_duration_seconds",
		metric.WithDescription("Dispatch request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: create request duration histogram: %w", err)
	}

	queueDepth, err := meter.Int64UpDownCounter(
		cfg.Namespace+"_workqueue_depth",
		metric.WithDescription("Current number of items waiting in the work queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: create queue depth gauge: %w", err)
	}

	return &Metrics{
		registry:        registry,
		provider:        provider,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		queueDepth:      queueDepth,
	}, nil
}

// Handler returns the HTTP handler serving this registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promclient.HandlerFor(m.registry, promclient.HandlerOpts{})
}

// RecordQueueDepth adjusts the work queue depth gauge by delta (+1 on
// submit, -1 once a worker picks the item up).
func (m *Metrics) RecordQueueDepth(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(ctx, delta)
}
