package saga

import (
	"context"
	"fmt"
)

// Hooks is the capability record a saga author fills to observe
// saga-level lifecycle transitions: completion, failure, and
// unrecoverable compensation failure. Represented as function pointers
// rather than an interface hierarchy, per the port's design notes.
type Hooks struct {
	// OnSagaSuccess runs once, after the last step completes (or the
	// last async step's success reply is applied).
	OnSagaSuccess func(ctx context.Context, inst *Instance)

	// OnSagaFailure runs once compensation has unwound every completed
	// step without error.
	OnSagaFailure func(ctx context.Context, inst *Instance, failedStep *Step, initialFailure ErrorPayload)

	// OnCompensationFailure runs when a compensation itself raises,
	// halting the rollback walk. The saga is left in an
	// operator-attention state; no further compensations are attempted.
	OnCompensationFailure func(ctx context.Context, inst *Instance, initiallyFailedStep *Step, initialFailure ErrorPayload, compensationFailedStep *Step, compensationErr error)
}

// Definition is an ordered, non-empty sequence of steps for one saga
// type. Steps and their order are fixed at definition time; Definition
// itself is never mutated after Validate succeeds.
type Definition struct {
	// Name identifies this saga type.
	Name string

	// Steps run in order. Duplicate names, and duplicate derived reply
	// names among Async steps, are rejected by Validate.
	Steps []Step

	Hooks Hooks
}

// Validate checks the definition for the definition errors named in the
// core spec: empty step list, duplicate step names, duplicate base task
// names (which would yield colliding reply names).
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("saga: definition name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("saga %q: must have at least one step", d.Name)
	}

	seenNames := make(map[string]bool, len(d.Steps))
	seenBaseTasks := make(map[string]string, len(d.Steps))

	for i := range d.Steps {
		step := d.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("saga %q: step %d: name is required", d.Name, i)
		}
		if seenNames[step.Name] {
			return fmt.Errorf("saga %q: duplicate step name %q", d.Name, step.Name)
		}
		seenNames[step.Name] = true

		if step.Kind == Async {
			if step.BaseTaskName == "" {
				return fmt.Errorf("saga %q: async step %q: base task name is required", d.Name, step.Name)
			}
			if owner, exists := seenBaseTasks[step.BaseTaskName]; exists {
				return fmt.Errorf("saga %q: steps %q and %q derive the same reply names from base task %q",
					d.Name, owner, step.Name, step.BaseTaskName)
			}
			seenBaseTasks[step.BaseTaskName] = step.Name
		}

		d.Steps[i] = step.withDefaults()
	}

	return nil
}

// firstStep returns the first step, or nil if there are none.
func (d *Definition) firstStep() *Step {
	if len(d.Steps) == 0 {
		return nil
	}
	return &d.Steps[0]
}

// stepIndex returns the index of step within d.Steps, matched by name.
func (d *Definition) stepIndex(step *Step) (int, error) {
	for i := range d.Steps {
		if d.Steps[i].Name == step.Name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("saga %q: step %q not found in definition", d.Name, step.Name)
}

// nextStep returns the step following the given one, or nil if step is
// the last step (or step is nil, in which case the first step is
// returned — "start at the first step").
func (d *Definition) nextStep(step *Step) (*Step, error) {
	if step == nil {
		return d.firstStep(), nil
	}
	idx, err := d.stepIndex(step)
	if err != nil {
		return nil, err
	}
	if idx == len(d.Steps)-1 {
		return nil, nil
	}
	return &d.Steps[idx+1], nil
}

// previousStep returns the step preceding the given one, or nil if step
// is the first step.
func (d *Definition) previousStep(step *Step) (*Step, error) {
	idx, err := d.stepIndex(step)
	if err != nil {
		return nil, err
	}
	if idx == 0 {
		return nil, nil
	}
	return &d.Steps[idx-1], nil
}

// isLastStep reports whether step is the last step of the definition.
func (d *Definition) isLastStep(step *Step) (bool, error) {
	idx, err := d.stepIndex(step)
	if err != nil {
		return false, err
	}
	return idx == len(d.Steps)-1, nil
}

// AsyncSteps returns the definition's async steps, in definition order.
// Used at registration time to bind broker reply handlers without
// constructing a throwaway saga instance.
func (d *Definition) AsyncSteps() []*Step {
	var out []*Step
	for i := range d.Steps {
		if d.Steps[i].Kind == Async {
			out = append(out, &d.Steps[i])
		}
	}
	return out
}

// stepByName returns the step with the given name.
func (d *Definition) stepByName(name string) (*Step, error) {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("saga %q: no step named %q", d.Name, name)
}

// stepBySuccessTaskName returns the async step whose derived success
// reply name matches the given task name.
func (d *Definition) stepBySuccessTaskName(taskName string) (*Step, error) {
	for _, step := range d.AsyncSteps() {
		if step.successTaskName() == taskName {
			return step, nil
		}
	}
	return nil, fmt.Errorf("saga %q: %w: no async step found with success task name %q", d.Name, ErrUnroutableReply, taskName)
}

// stepByFailureTaskName returns the async step whose derived failure
// reply name matches the given task name.
func (d *Definition) stepByFailureTaskName(taskName string) (*Step, error) {
	for _, step := range d.AsyncSteps() {
		if step.failureTaskName() == taskName {
			return step, nil
		}
	}
	return nil, fmt.Errorf("saga %q: %w: no async step found with failure task name %q", d.Name, ErrUnroutableReply, taskName)
}
