package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records what the admission engine does. Implementations must be
// safe for concurrent use.
type Metrics interface {
	// RecordDecision records one admission evaluation and its duration.
	RecordDecision(ctx context.Context, algorithm string, allowed bool, duration time.Duration)

	// RecordFallback records a fail-open decision and why it happened
	// (breaker_open, store_error).
	RecordFallback(ctx context.Context, reason string)

	// RecordPolicyLayers records which policy layers adjusted a request.
	RecordPolicyLayers(ctx context.Context, layers []string)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, from, to string)

	// RecordStoreError records a counter store failure.
	RecordStoreError(ctx context.Context)

	// RecordHTTPRequest records one served HTTP request.
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)

	// Handler serves the metrics endpoint.
	Handler() http.Handler
}

// PrometheusMetrics implements Metrics on OpenTelemetry instruments backed
// by a Prometheus exporter.
type PrometheusMetrics struct {
	decisionsTotal    metric.Int64Counter
	decisionDuration  metric.Float64Histogram
	fallbacksTotal    metric.Int64Counter
	policyLayersTotal metric.Int64Counter
	breakerTotal      metric.Int64Counter
	storeErrorsTotal  metric.Int64Counter
	httpDuration      metric.Float64Histogram
	httpTotal         metric.Int64Counter

	handler http.Handler
}

func (m *PrometheusMetrics) RecordDecision(ctx context.Context, algorithm string, allowed bool, duration time.Duration) {
	if m == nil || m.decisionsTotal == nil {
		return
	}

	outcome := OutcomeDenied
	if allowed {
		outcome = OutcomeAllowed
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrAlgorithm, algorithm),
		attribute.String(AttrOutcome, outcome),
	}

	m.decisionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.decisionDuration != nil {
		m.decisionDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String(AttrAlgorithm, algorithm)))
	}
}

func (m *PrometheusMetrics) RecordFallback(ctx context.Context, reason string) {
	if m == nil || m.fallbacksTotal == nil {
		return
	}
	m.fallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (m *PrometheusMetrics) RecordPolicyLayers(ctx context.Context, layers []string) {
	if m == nil || m.policyLayersTotal == nil {
		return
	}
	for _, layer := range layers {
		m.policyLayersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrLayer, layer)))
	}
}

func (m *PrometheusMetrics) RecordBreakerTransition(ctx context.Context, from, to string) {
	if m == nil || m.breakerTotal == nil {
		return
	}
	m.breakerTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBreakerFrom, from),
		attribute.String(AttrBreakerTo, to),
	))
}

func (m *PrometheusMetrics) RecordStoreError(ctx context.Context) {
	if m == nil || m.storeErrorsTotal == nil {
		return
	}
	m.storeErrorsTotal.Add(ctx, 1)
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPPath, path),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	}
	m.httpTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.httpDuration != nil {
		m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// Handler serves the Prometheus scrape endpoint. Returns a 503 handler when
// metrics are disabled.
func (m *PrometheusMetrics) Handler() http.Handler {
	if m == nil || m.handler == nil {
		return NoopMetrics{}.Handler()
	}
	return m.handler
}
