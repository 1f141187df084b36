package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records saga execution metrics. Use NewMetricsRecorder
// for OpenTelemetry-backed metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStepExecution records one step's forward action: its
	// duration and whether it returned an error.
	RecordStepExecution(ctx context.Context, stepName string, duration time.Duration, err error)

	// RecordCompensation records one compensation step's execution.
	RecordCompensation(ctx context.Context, stepName string, duration time.Duration, err error)

	// RecordSagaRun records one saga's terminal outcome: success,
	// failure, or stuck compensation.
	RecordSagaRun(ctx context.Context, sagaName string, outcome string, duration time.Duration)
}

type otelMetrics struct {
	stepExecutions         metric.Int64Counter
	stepLatency            metric.Float64Histogram
	stepErrors             metric.Int64Counter
	compensationExecutions metric.Int64Counter
	compensationLatency    metric.Float64Histogram
	compensationErrors     metric.Int64Counter
	sagaRuns               metric.Int64Counter
	sagaLatency            metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("sagaorch")

	stepExecutions, err := meter.Int64Counter("sagaorch.step.executions",
		metric.WithDescription("Number of step forward-action executions"))
	if err != nil {
		return nil, err
	}

	stepLatency, err := meter.Float64Histogram("sagaorch.step.latency_ms",
		metric.WithDescription("Step forward-action latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	stepErrors, err := meter.Int64Counter("sagaorch.step.errors",
		metric.WithDescription("Number of step forward-action failures"))
	if err != nil {
		return nil, err
	}

	compensationExecutions, err := meter.Int64Counter("sagaorch.compensation.executions",
		metric.WithDescription("Number of compensation executions"))
	if err != nil {
		return nil, err
	}

	compensationLatency, err := meter.Float64Histogram("sagaorch.compensation.latency_ms",
		metric.WithDescription("Compensation latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	compensationErrors, err := meter.Int64Counter("sagaorch.compensation.errors",
		metric.WithDescription("Number of compensation failures (compensation-stuck cause)"))
	if err != nil {
		return nil, err
	}

	sagaRuns, err := meter.Int64Counter("sagaorch.saga.runs",
		metric.WithDescription("Number of completed saga runs, by outcome"))
	if err != nil {
		return nil, err
	}

	sagaLatency, err := meter.Float64Histogram("sagaorch.saga.latency_ms",
		metric.WithDescription("Saga end-to-end latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stepExecutions:         stepExecutions,
		stepLatency:            stepLatency,
		stepErrors:             stepErrors,
		compensationExecutions: compensationExecutions,
		compensationLatency:    compensationLatency,
		compensationErrors:     compensationErrors,
		sagaRuns:               sagaRuns,
		sagaLatency:            sagaLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. Configure the provider (otel.SetMeterProvider) before
// calling this; if instrument registration fails, a no-op recorder is
// returned instead.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder", "error", err)
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordStepExecution(ctx context.Context, stepName string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("step_name", stepName)}
	m.stepExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stepLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.stepErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordCompensation(ctx context.Context, stepName string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("step_name", stepName)}
	m.compensationExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.compensationLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.compensationErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordSagaRun(ctx context.Context, sagaName string, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("saga_name", sagaName),
		attribute.String("outcome", outcome),
	}
	m.sagaRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sagaLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}
