package saga

import (
	"context"
	"time"

	"github.com/kdean-oss/sagaorch/pkg/saga/observability"
)

// Engine is the set of hookable primitives the stateful layer
// intercepts (§4.7 of the core spec). BaseEngine implements it directly;
// state.StatefulEngine wraps one Engine and decorates each primitive
// with repository writes around the delegated call. Execute, Compensate,
// DispatchReplySuccess, and DispatchReplyFailure below are the shared
// orchestration algorithms, written once and parametrized over whichever
// Engine they're given — this is what lets a decorator observe every
// step of forward execution, reply dispatch, and compensation without
// duplicating the control flow.
type Engine interface {
	// RunStep invokes step's forward action.
	RunStep(ctx context.Context, inst *Instance, step *Step) error

	// CompensateStep invokes step's compensation during rollback.
	CompensateStep(ctx context.Context, inst *Instance, step *Step, initialFailure ErrorPayload) error

	// BeforeCompensate runs once, before the compensation walk begins.
	// BaseEngine's implementation is a no-op; the stateful layer uses it
	// to record the triggering failure against the saga's persisted
	// state before any compensation runs.
	BeforeCompensate(ctx context.Context, inst *Instance, failedStep *Step, initialFailure ErrorPayload) error

	// OnStepSuccess runs when a success reply arrives for an async step,
	// before the step's own OnSuccess hook.
	OnStepSuccess(ctx context.Context, inst *Instance, step *Step) error

	// OnStepFailure runs when a failure reply arrives for an async step,
	// before the step's own OnFailure hook.
	OnStepFailure(ctx context.Context, inst *Instance, step *Step) error

	// OnSagaSuccess runs once the saga has completed every step.
	OnSagaSuccess(ctx context.Context, inst *Instance)

	// OnSagaFailure runs once compensation has unwound every completed
	// step without error.
	OnSagaFailure(ctx context.Context, inst *Instance, failedStep *Step, initialFailure ErrorPayload)

	// OnCompensationStuck runs when compensation cannot complete — either
	// BeforeCompensate or a compensation step itself failed — leaving the
	// saga in a terminal, operator-attention state.
	OnCompensationStuck(ctx context.Context, inst *Instance, failedStep *Step, initialFailure ErrorPayload, compensationFailedStep *Step, compensationErr error)
}

// BaseEngine is the plain, non-persistent Engine. It runs step actions
// and compensations and dispatches the definition's lifecycle hooks; it
// keeps no record of saga progress beyond the current call stack.
type BaseEngine struct{}

// NewBaseEngine constructs a BaseEngine.
func NewBaseEngine() *BaseEngine {
	return &BaseEngine{}
}

var _ Engine = (*BaseEngine)(nil)

// RunStep implements Engine.
func (e *BaseEngine) RunStep(ctx context.Context, inst *Instance, step *Step) error {
	observability.LogStepStart(observability.EnrichLogger(inst.logger(), inst.SagaID, step.Name), step.Name)
	return step.Action(ctx, inst, step)
}

// CompensateStep implements Engine.
func (e *BaseEngine) CompensateStep(ctx context.Context, inst *Instance, step *Step, initialFailure ErrorPayload) error {
	observability.LogStepStart(observability.EnrichLogger(inst.logger(), inst.SagaID, step.Name), step.Name)
	return step.Compensation(ctx, inst, step)
}

// BeforeCompensate implements Engine; a no-op for the base engine.
func (e *BaseEngine) BeforeCompensate(_ context.Context, _ *Instance, _ *Step, _ ErrorPayload) error {
	return nil
}

// OnStepSuccess implements Engine; a no-op for the base engine.
func (e *BaseEngine) OnStepSuccess(_ context.Context, _ *Instance, _ *Step) error {
	return nil
}

// OnStepFailure implements Engine; a no-op for the base engine.
func (e *BaseEngine) OnStepFailure(_ context.Context, _ *Instance, _ *Step) error {
	return nil
}

// OnSagaSuccess implements Engine. Terminal logging/metrics/tracing for
// the saga as a whole is owned by the driver functions below (Execute,
// DispatchReplySuccess), which have the duration context this hook does
// not; OnSagaSuccess itself only dispatches the definition's hook.
func (e *BaseEngine) OnSagaSuccess(ctx context.Context, inst *Instance) {
	inst.Definition.callOnSagaSuccess(ctx, inst)
}

// OnSagaFailure implements Engine. See OnSagaSuccess: terminal
// observability lives in Compensate, which calls this.
func (e *BaseEngine) OnSagaFailure(ctx context.Context, inst *Instance, failedStep *Step, initialFailure ErrorPayload) {
	inst.Definition.callOnSagaFailure(ctx, inst, failedStep, initialFailure)
}

// OnCompensationStuck implements Engine; a no-op beyond hook dispatch
// for the base engine. state.StatefulEngine additionally records the
// terminal "compensation_stuck" status.
func (e *BaseEngine) OnCompensationStuck(ctx context.Context, inst *Instance, failedStep *Step, initialFailure ErrorPayload, compensationFailedStep *Step, compensationErr error) {
	inst.Definition.callOnCompensationFailure(ctx, inst, failedStep, initialFailure, compensationFailedStep, compensationErr)
}

// Execute advances inst forward through its definition's steps, starting
// at startingStep (or the first step, if nil), until one of: every step
// completes (OnSagaSuccess fires and Execute returns nil), an async
// step's action has dispatched and Execute returns nil leaving the saga
// suspended awaiting a reply, or a step's action fails, in which case
// compensation is triggered rooted at that step and the original error
// is returned to the caller once the saga has been placed in a terminal
// observable state.
func Execute(ctx context.Context, engine Engine, inst *Instance, startingStep *Step) error {
	step := startingStep
	if step == nil {
		step = inst.Definition.firstStep()
		observability.LogSagaStart(inst.logger(), inst.SagaID, inst.Definition.Name)
	}

	sagaCtx, sagaSpan := inst.spans().StartSagaSpan(ctx, inst.Definition.Name, inst.SagaID)
	start := time.Now()
	var runErr error
	defer func() { inst.spans().EndSpanWithError(sagaSpan, runErr) }()

	for step != nil {
		stepLogger := observability.EnrichLogger(inst.logger(), inst.SagaID, step.Name)
		observability.LogStepStart(stepLogger, step.Name)

		stepCtx, stepSpan := inst.spans().StartStepSpan(sagaCtx, step.Name)
		stepStart := time.Now()
		err := engine.RunStep(stepCtx, inst, step)
		stepDuration := time.Since(stepStart)
		inst.metrics().RecordStepExecution(stepCtx, step.Name, stepDuration, err)
		inst.spans().EndSpanWithError(stepSpan, err)

		if err != nil {
			observability.LogStepFailure(stepLogger, step.Name, err)
			runErr = err
			Compensate(ctx, engine, inst, step, SerializeError(err))
			return err
		}
		observability.LogStepSuccess(stepLogger, step.Name, float64(stepDuration.Milliseconds()))

		if step.Kind == Async {
			return nil
		}

		next, err := inst.Definition.nextStep(step)
		if err != nil {
			runErr = err
			return err
		}
		step = next
	}

	engine.OnSagaSuccess(ctx, inst)
	duration := time.Since(start)
	observability.LogSagaSuccess(inst.logger(), inst.SagaID, float64(duration.Milliseconds()))
	inst.metrics().RecordSagaRun(sagaCtx, inst.Definition.Name, "succeeded", duration)
	return nil
}

// DispatchReplySuccess handles a success reply for step: it runs the
// step's OnSuccess hook and then either completes the saga (if step was
// last) or resumes Execute at the next step.
func DispatchReplySuccess(ctx context.Context, engine Engine, inst *Instance, step *Step, payload map[string]any) error {
	stepLogger := observability.EnrichLogger(inst.logger(), inst.SagaID, step.Name)
	stepCtx, stepSpan := inst.spans().StartStepSpan(ctx, step.Name)
	start := time.Now()

	err := engine.OnStepSuccess(stepCtx, inst, step)
	if err == nil {
		err = step.OnSuccess(stepCtx, inst, step, payload)
	}
	duration := time.Since(start)
	inst.metrics().RecordStepExecution(stepCtx, step.Name, duration, err)
	inst.spans().EndSpanWithError(stepSpan, err)

	if err != nil {
		observability.LogStepFailure(stepLogger, step.Name, err)
		return err
	}
	observability.LogStepSuccess(stepLogger, step.Name, float64(duration.Milliseconds()))

	isLast, err := inst.Definition.isLastStep(step)
	if err != nil {
		return err
	}
	if isLast {
		engine.OnSagaSuccess(ctx, inst)
		observability.LogSagaSuccess(inst.logger(), inst.SagaID, float64(duration.Milliseconds()))
		inst.metrics().RecordSagaRun(stepCtx, inst.Definition.Name, "succeeded", duration)
		return nil
	}

	next, err := inst.Definition.nextStep(step)
	if err != nil {
		return err
	}
	return Execute(ctx, engine, inst, next)
}

// DispatchReplyFailure handles a failure reply for step: it runs the
// step's OnFailure hook and then initiates compensation rooted at step.
func DispatchReplyFailure(ctx context.Context, engine Engine, inst *Instance, step *Step, payload map[string]any) error {
	stepLogger := observability.EnrichLogger(inst.logger(), inst.SagaID, step.Name)
	stepCtx, stepSpan := inst.spans().StartStepSpan(ctx, step.Name)
	start := time.Now()

	err := engine.OnStepFailure(stepCtx, inst, step)
	if err == nil {
		err = step.OnFailure(stepCtx, inst, step, payload)
	}
	inst.metrics().RecordStepExecution(stepCtx, step.Name, time.Since(start), err)
	inst.spans().EndSpanWithError(stepSpan, err)

	if err != nil {
		observability.LogStepFailure(stepLogger, step.Name, err)
		return err
	}

	Compensate(ctx, engine, inst, step, ErrorPayloadFromMap(payload))
	return nil
}
