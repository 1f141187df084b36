package saga

import "context"

// SendMessageToOtherService publishes step's outbound message. taskName
// overrides step.BaseTaskName when non-empty, matching the optional
// task_name override in the core spec's §4.6. It is the sole outbound
// operation the engine performs; all correlation rides on the instance's
// SagaID plus the reply names naming.go derives from the task name.
func SendMessageToOtherService(ctx context.Context, inst *Instance, step *Step, payload map[string]any, taskName string) (string, error) {
	name := taskName
	if name == "" {
		name = step.BaseTaskName
	}
	return inst.Broker.SendTask(ctx, step.Queue, name, inst.SagaID, payload)
}
