package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	registry := prometheus.NewRegistry()
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("cerberus")

	decisionsTotal, err := meter.Int64Counter(
		"cerberus_decisions_total",
		metric.WithDescription("Total admission decisions by algorithm and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	decisionDuration, err := meter.Float64Histogram(
		"cerberus_decision_duration_seconds",
		metric.WithDescription("Admission evaluation duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision duration histogram: %w", err)
	}

	fallbacksTotal, err := meter.Int64Counter(
		"cerberus_fallbacks_total",
		metric.WithDescription("Total fail-open decisions by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallbacks counter: %w", err)
	}

	policyLayersTotal, err := meter.Int64Counter(
		"cerberus_policy_adjustments_total",
		metric.WithDescription("Total policy layer adjustments by layer"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy adjustments counter: %w", err)
	}

	breakerTotal, err := meter.Int64Counter(
		"cerberus_breaker_transitions_total",
		metric.WithDescription("Total circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create breaker transitions counter: %w", err)
	}

	storeErrorsTotal, err := meter.Int64Counter(
		"cerberus_store_errors_total",
		metric.WithDescription("Total counter store failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store errors counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"cerberus_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpTotal, err := meter.Int64Counter(
		"cerberus_http_requests_total",
		metric.WithDescription("Total HTTP requests served"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return &PrometheusMetrics{
		decisionsTotal:    decisionsTotal,
		decisionDuration:  decisionDuration,
		fallbacksTotal:    fallbacksTotal,
		policyLayersTotal: policyLayersTotal,
		breakerTotal:      breakerTotal,
		storeErrorsTotal:  storeErrorsTotal,
		httpDuration:      httpDuration,
		httpTotal:         httpTotal,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}
