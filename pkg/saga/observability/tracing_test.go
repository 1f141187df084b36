package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer("sagaorch")

	return exporter, func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("sagaorch")
		require.NoError(t, provider.Shutdown(context.Background()))
	}
}

func TestStartSagaSpanSetsAttributes(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	mgr := NewSpanManager()
	_, span := mgr.StartSagaSpan(context.Background(), "order-saga", 99)
	mgr.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sagaorch.saga", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	found := false
	for _, attr := range spans[0].Attributes {
		if attr.Key == attribute.Key("saga.id") {
			found = true
			assert.Equal(t, int64(99), attr.Value.AsInt64())
		}
	}
	assert.True(t, found, "expected saga.id attribute")
}

func TestStartStepSpanRecordsError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	mgr := NewSpanManager()
	_, span := mgr.StartStepSpan(context.Background(), "charge_card")
	mgr.EndSpanWithError(span, errors.New("card declined"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sagaorch.step.charge_card", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	require.Len(t, spans[0].Events, 1)
}

func TestNoopSpanManagerDoesNotPanic(t *testing.T) {
	mgr := NoopSpanManager{}
	ctx, span := mgr.StartSagaSpan(context.Background(), "order-saga", 1)
	assert.NotPanics(t, func() {
		mgr.AddSpanEvent(ctx, "tick")
		mgr.EndSpanWithError(span, errors.New("boom"))
	})
}
