package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing. Use when metrics
// are disabled to avoid instrument overhead.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordStepExecution(_ context.Context, _ string, _ time.Duration, _ error) {}
func (NoopMetrics) RecordCompensation(_ context.Context, _ string, _ time.Duration, _ error)  {}
func (NoopMetrics) RecordSagaRun(_ context.Context, _ string, _ string, _ time.Duration)      {}

// NoopSpanManager is a SpanManager that does nothing. Use when tracing
// is disabled to avoid span overhead.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

func (NoopSpanManager) StartSagaSpan(ctx context.Context, _ string, _ int64) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopSpanManager) StartStepSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
