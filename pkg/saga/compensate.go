package saga

import (
	"context"
	"errors"
	"time"

	"github.com/kdean-oss/sagaorch/pkg/saga/observability"
)

// Compensate walks backward from failedStep through every previously
// completed step, invoking each one's compensation via engine.
// CompensateStep. The walk stops at the first compensation failure (or
// at the first step-lookup failure) and reports it through
// engine.OnCompensationStuck rather than propagating it: a stuck
// compensation is a terminal condition the saga author observes and
// handles externally, not a Go error the caller can retry. If the walk
// reaches the first step without incident, engine.OnSagaFailure fires
// and the saga lands in its compensated terminal state. Compensate owns
// the saga-level span, log, and metric for whichever terminal outcome
// it reaches, since it is entered both from Execute (a local step
// failure) and directly from DispatchReplyFailure (a remote failure
// reply) — Execute's own saga span covers only the forward-progress
// portion of a call.
func Compensate(ctx context.Context, engine Engine, inst *Instance, failedStep *Step, initialFailure ErrorPayload) {
	sagaCtx, sagaSpan := inst.spans().StartSagaSpan(ctx, inst.Definition.Name, inst.SagaID)
	start := time.Now()

	stuck := func(compensationFailedStep *Step, compensationErr error) {
		engine.OnCompensationStuck(sagaCtx, inst, failedStep, initialFailure, compensationFailedStep, compensationErr)
		observability.LogCompensationStuck(inst.logger(), inst.SagaID, compensationFailedStep.Name, compensationErr)
		inst.metrics().RecordSagaRun(sagaCtx, inst.Definition.Name, "compensation_stuck", time.Since(start))
		inst.spans().EndSpanWithError(sagaSpan, compensationErr)
	}

	if err := engine.BeforeCompensate(sagaCtx, inst, failedStep, initialFailure); err != nil {
		stuck(failedStep, err)
		return
	}

	step, err := inst.Definition.previousStep(failedStep)
	if err != nil {
		stuck(failedStep, err)
		return
	}

	for step != nil {
		stepLogger := observability.EnrichLogger(inst.logger(), inst.SagaID, step.Name)
		observability.LogStepStart(stepLogger, step.Name)

		stepCtx, stepSpan := inst.spans().StartStepSpan(sagaCtx, step.Name)
		stepStart := time.Now()
		cerr := engine.CompensateStep(stepCtx, inst, step, initialFailure)
		stepDuration := time.Since(stepStart)
		inst.metrics().RecordCompensation(stepCtx, step.Name, stepDuration, cerr)
		inst.spans().EndSpanWithError(stepSpan, cerr)

		if cerr != nil {
			observability.LogStepFailure(stepLogger, step.Name, cerr)
			stuck(step, cerr)
			return
		}
		observability.LogStepSuccess(stepLogger, step.Name, float64(stepDuration.Milliseconds()))

		prev, err := inst.Definition.previousStep(step)
		if err != nil {
			stuck(step, err)
			return
		}
		step = prev
	}

	engine.OnSagaFailure(ctx, inst, failedStep, initialFailure)
	duration := time.Since(start)
	observability.LogSagaFailure(inst.logger(), inst.SagaID, failedStep.Name, errors.New(initialFailure.Message), float64(duration.Milliseconds()))
	inst.metrics().RecordSagaRun(sagaCtx, inst.Definition.Name, "failed", duration)
	inst.spans().EndSpanWithError(sagaSpan, nil)
}
