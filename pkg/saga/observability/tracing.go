package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sagaorch")

// SpanManager handles trace span lifecycle for a saga run and its
// individual steps. Use NewSpanManager for OTel-backed tracing, or
// NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartSagaSpan starts a saga-level span for one call into a saga
	// instance (a forward run or a compensation walk). A saga that
	// suspends at an async step and later resumes gets a separate saga
	// span for each such call.
	StartSagaSpan(ctx context.Context, sagaName string, sagaID int64) (context.Context, trace.Span)

	// StartStepSpan starts a span for one step's forward action or
	// compensation, as a child of the saga span.
	StartStepSpan(ctx context.Context, stepName string) (context.Context, trace.Span)

	// EndSpanWithError completes span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span currently in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager backed by the global OTel tracer
// provider. Configure the provider (otel.SetTracerProvider) before
// calling this.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartSagaSpan(ctx context.Context, sagaName string, sagaID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sagaorch.saga",
		trace.WithAttributes(
			attribute.String("saga.name", sagaName),
			attribute.Int64("saga.id", sagaID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartStepSpan(ctx context.Context, stepName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sagaorch.step."+stepName,
		trace.WithAttributes(attribute.String("step.name", stepName)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
