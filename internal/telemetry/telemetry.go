// Package telemetry wires OpenTelemetry for the query engine: OTLP trace
// and metric exporters plus the pipeline-stage duration instruments the
// orchestrator records per request.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// scopePipeline is the instrumentation scope for per-stage pipeline
// metrics. The HTTP layer uses its own "shiori/http" tracer.
const scopePipeline = "shiori/pipeline"

// Shutdown flushes and stops the configured providers.
type Shutdown func(ctx context.Context) error

// Init installs the global tracer and meter providers, exporting over
// OTLP/HTTP to endpoint. An empty endpoint leaves the no-op globals in
// place, so spans and metrics recorded elsewhere cost nothing. The
// returned Shutdown must run during graceful shutdown.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// W3C trace context + baggage, so an upstream gateway's traceparent
	// carries through the ask request into embedding and LLM calls.
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second)),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return shutdown, nil
}

// PipelineMetrics holds the duration histograms for the retrieval,
// rerank, and LLM stages, labelled by tenant and outcome.
type PipelineMetrics struct {
	retrieval metric.Float64Histogram
	rerank    metric.Float64Histogram
	llm       metric.Float64Histogram
}

// StageTimings carries one request's stage durations into Record.
type StageTimings struct {
	Retrieval time.Duration
	Rerank    time.Duration
	LLM       time.Duration
}

// NewPipelineMetrics creates the stage histograms on the global meter
// provider. Before Init, or with no endpoint configured, the instruments
// are no-ops.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.GetMeterProvider().Meter(scopePipeline)

	retrieval, err := meter.Float64Histogram("shiori.pipeline.retrieval.duration",
		metric.WithDescription("Retrieval fan-out duration per request"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: retrieval histogram: %w", err)
	}
	rerank, err := meter.Float64Histogram("shiori.pipeline.rerank.duration",
		metric.WithDescription("Reranker duration per request"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: rerank histogram: %w", err)
	}
	llm, err := meter.Float64Histogram("shiori.pipeline.llm.duration",
		metric.WithDescription("LLM generation duration per request"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: llm histogram: %w", err)
	}

	return &PipelineMetrics{retrieval: retrieval, rerank: rerank, llm: llm}, nil
}

// Record writes one request's stage durations. Stages that did not run
// (an LLM duration on a refused request) are skipped, not recorded as
// zero.
func (p *PipelineMetrics) Record(ctx context.Context, tenantID, outcome string, t StageTimings) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("outcome", outcome),
	)
	if t.Retrieval > 0 {
		p.retrieval.Record(ctx, float64(t.Retrieval.Milliseconds()), attrs)
	}
	if t.Rerank > 0 {
		p.rerank.Record(ctx, float64(t.Rerank.Milliseconds()), attrs)
	}
	if t.LLM > 0 {
		p.llm.Record(ctx, float64(t.LLM.Milliseconds()), attrs)
	}
}
