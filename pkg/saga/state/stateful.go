package state

import (
	"context"
	"log/slog"

	"github.com/kdean-oss/sagaorch/pkg/saga"
)

// StatefulEngine wraps a base saga.Engine and a Repository, writing
// status transitions around each delegated call per the core spec's
// §4.7 contract. It is injected at construction — never a package- or
// type-level variable — so a process can run stateful and stateless
// saga types side by side against the same Repository.
type StatefulEngine struct {
	base   saga.Engine
	repo   Repository
	logger *slog.Logger
}

// Option configures a StatefulEngine at construction time.
type Option func(*StatefulEngine)

// WithLogger attaches a structured logger used for repository-write
// failures that have no other reporting path.
func WithLogger(logger *slog.Logger) Option {
	return func(e *StatefulEngine) {
		e.logger = logger
	}
}

// NewStatefulEngine wraps base (or a plain saga.BaseEngine, if nil) with
// status-writing middleware backed by repo.
func NewStatefulEngine(base saga.Engine, repo Repository, opts ...Option) *StatefulEngine {
	if base == nil {
		base = saga.NewBaseEngine()
	}
	e := &StatefulEngine{base: base, repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ saga.Engine = (*StatefulEngine)(nil)

// RunStep implements saga.Engine. It writes "<step>.running" before
// delegating, and for synchronous steps, "<step>.succeeded" after — an
// async step's completion is instead recorded by OnStepSuccess once its
// reply arrives.
func (e *StatefulEngine) RunStep(ctx context.Context, inst *saga.Instance, step *saga.Step) error {
	if err := e.repo.UpdateStatus(ctx, inst.SagaID, step.Name+".running"); err != nil {
		return err
	}

	if err := e.base.RunStep(ctx, inst, step); err != nil {
		return err
	}

	if step.Kind == saga.Sync {
		return e.repo.UpdateStatus(ctx, inst.SagaID, step.Name+".succeeded")
	}
	return nil
}

// CompensateStep implements saga.Engine, writing "<step>.compensating"
// before and "<step>.compensated" after the delegated call.
func (e *StatefulEngine) CompensateStep(ctx context.Context, inst *saga.Instance, step *saga.Step, initialFailure saga.ErrorPayload) error {
	if err := e.repo.UpdateStatus(ctx, inst.SagaID, step.Name+".compensating"); err != nil {
		return err
	}

	if err := e.base.CompensateStep(ctx, inst, step, initialFailure); err != nil {
		return err
	}

	return e.repo.UpdateStatus(ctx, inst.SagaID, step.Name+".compensated")
}

// BeforeCompensate implements saga.Engine, recording the triggering
// failure against the saga's persisted record before any compensation
// runs. A repository error here is itself treated as a compensation
// failure, per the core spec's §4.7 note that repository errors during
// rollback behave like a failed compensation step.
func (e *StatefulEngine) BeforeCompensate(ctx context.Context, inst *saga.Instance, failedStep *saga.Step, initialFailure saga.ErrorPayload) error {
	return e.repo.OnStepFailure(ctx, inst.SagaID, failedStep.Name, initialFailure.ToMap())
}

// OnStepSuccess implements saga.Engine, recording "<step>.succeeded" for
// an async step's success reply before the base engine runs the step's
// own OnSuccess hook.
func (e *StatefulEngine) OnStepSuccess(ctx context.Context, inst *saga.Instance, step *saga.Step) error {
	if err := e.repo.UpdateStatus(ctx, inst.SagaID, step.Name+".succeeded"); err != nil {
		return err
	}
	return e.base.OnStepSuccess(ctx, inst, step)
}

// OnStepFailure implements saga.Engine, recording "<step>.failed" for an
// async step's failure reply before the base engine runs the step's own
// OnFailure hook.
func (e *StatefulEngine) OnStepFailure(ctx context.Context, inst *saga.Instance, step *saga.Step) error {
	if err := e.repo.UpdateStatus(ctx, inst.SagaID, step.Name+".failed"); err != nil {
		return err
	}
	return e.base.OnStepFailure(ctx, inst, step)
}

// OnSagaSuccess implements saga.Engine, running the base engine's hook
// dispatch first and then writing the terminal "succeeded" status.
func (e *StatefulEngine) OnSagaSuccess(ctx context.Context, inst *saga.Instance) {
	e.base.OnSagaSuccess(ctx, inst)
	if err := e.repo.UpdateStatus(ctx, inst.SagaID, "succeeded"); err != nil {
		e.logger.Error("state: failed to record saga success", "saga_id", inst.SagaID, "error", err)
	}
}

// OnSagaFailure implements saga.Engine, running the base engine's hook
// dispatch first and then writing the terminal "failed" status.
func (e *StatefulEngine) OnSagaFailure(ctx context.Context, inst *saga.Instance, failedStep *saga.Step, initialFailure saga.ErrorPayload) {
	e.base.OnSagaFailure(ctx, inst, failedStep, initialFailure)
	if err := e.repo.UpdateStatus(ctx, inst.SagaID, "failed"); err != nil {
		e.logger.Error("state: failed to record saga failure", "saga_id", inst.SagaID, "error", err)
	}
}

// OnCompensationStuck implements saga.Engine, running the base engine's
// hook dispatch first and then writing the terminal "compensation_stuck"
// status — the third terminal status the reply router's late-reply
// guard checks for, alongside "succeeded" and "failed".
func (e *StatefulEngine) OnCompensationStuck(ctx context.Context, inst *saga.Instance, failedStep *saga.Step, initialFailure saga.ErrorPayload, compensationFailedStep *saga.Step, compensationErr error) {
	e.base.OnCompensationStuck(ctx, inst, failedStep, initialFailure, compensationFailedStep, compensationErr)
	if err := e.repo.UpdateStatus(ctx, inst.SagaID, "compensation_stuck"); err != nil {
		e.logger.Error("state: failed to record compensation stuck", "saga_id", inst.SagaID, "error", err)
	}
}
