package saga

import (
	"log/slog"

	"github.com/kdean-oss/sagaorch/pkg/saga/broker"
	"github.com/kdean-oss/sagaorch/pkg/saga/observability"
)

// Instance is a saga instance bound to one business transaction. It is
// ephemeral: forward execution creates one, and the reply router
// reconstructs a fresh one from the delivered saga_id for every inbound
// reply. Persistent state, when a saga type is stateful, lives entirely
// in a state.Repository consulted by the engine decorator — never here.
type Instance struct {
	// SagaID is the externally assigned correlation token, stable for
	// the lifetime of the transaction and carried on every outbound and
	// inbound message.
	SagaID int64

	// Definition is the ordered step list for this saga type. Shared,
	// never mutated by an Instance.
	Definition *Definition

	// Broker publishes outbound messages for async steps.
	Broker broker.Broker

	// Logger receives structured status/progress logging. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger

	// Metrics records step/compensation/saga execution metrics. Defaults
	// to observability.NoopMetrics{} when nil.
	Metrics observability.MetricsRecorder

	// Spans manages trace span lifecycle around step execution,
	// compensation, and saga-level dispatch. Defaults to
	// observability.NoopSpanManager{} when nil.
	Spans observability.SpanManager
}

// logger returns Inst.Logger, or slog.Default() if unset.
func (inst *Instance) logger() *slog.Logger {
	if inst.Logger != nil {
		return inst.Logger
	}
	return slog.Default()
}

// metrics returns inst.Metrics, or a no-op recorder if unset.
func (inst *Instance) metrics() observability.MetricsRecorder {
	if inst.Metrics != nil {
		return inst.Metrics
	}
	return observability.NoopMetrics{}
}

// spans returns inst.Spans, or a no-op span manager if unset.
func (inst *Instance) spans() observability.SpanManager {
	if inst.Spans != nil {
		return inst.Spans
	}
	return observability.NoopSpanManager{}
}

// NewInstance binds a definition, saga id, and broker into a saga
// instance ready for Execute.
func NewInstance(def *Definition, sagaID int64, brk broker.Broker, opts ...InstanceOption) *Instance {
	inst := &Instance{
		SagaID:     sagaID,
		Definition: def,
		Broker:     brk,
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst
}

// InstanceOption configures an Instance at construction time.
type InstanceOption func(*Instance)

// WithLogger attaches a structured logger to the instance.
func WithLogger(logger *slog.Logger) InstanceOption {
	return func(inst *Instance) {
		inst.Logger = logger
	}
}

// WithMetrics attaches a metrics recorder to the instance.
func WithMetrics(metrics observability.MetricsRecorder) InstanceOption {
	return func(inst *Instance) {
		inst.Metrics = metrics
	}
}

// WithSpanManager attaches a span manager to the instance.
func WithSpanManager(spans observability.SpanManager) InstanceOption {
	return func(inst *Instance) {
		inst.Spans = spans
	}
}
