package saga

import "context"

// callOnSagaSuccess invokes Hooks.OnSagaSuccess if set.
func (d *Definition) callOnSagaSuccess(ctx context.Context, inst *Instance) {
	if d.Hooks.OnSagaSuccess != nil {
		d.Hooks.OnSagaSuccess(ctx, inst)
	}
}

// callOnSagaFailure invokes Hooks.OnSagaFailure if set.
func (d *Definition) callOnSagaFailure(ctx context.Context, inst *Instance, failedStep *Step, initialFailure ErrorPayload) {
	if d.Hooks.OnSagaFailure != nil {
		d.Hooks.OnSagaFailure(ctx, inst, failedStep, initialFailure)
	}
}

// callOnCompensationFailure invokes Hooks.OnCompensationFailure if set.
func (d *Definition) callOnCompensationFailure(ctx context.Context, inst *Instance, initiallyFailedStep *Step, initialFailure ErrorPayload, compensationFailedStep *Step, compensationErr error) {
	if d.Hooks.OnCompensationFailure != nil {
		d.Hooks.OnCompensationFailure(ctx, inst, initiallyFailedStep, initialFailure, compensationFailedStep, compensationErr)
	}
}
