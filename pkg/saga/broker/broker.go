// Package broker defines the send-task + bind-handler interface the
// saga orchestrator assumes of its messaging collaborator. The core
// orchestration logic never depends on a specific transport; it only
// needs to publish a task to a queue and have reply tasks routed back to
// a handler by name.
//
// This mirrors the "assumed interface" stance of the core specification:
// the broker's own wire protocol, delivery guarantees, and retry
// behavior are out of scope here and are the concern of the concrete
// adapter (see the memory and kafka subpackages).
package broker

import "context"

// ReplyHandler processes an inbound reply task. taskName is the
// delivered task name (e.g. "create_ticket.response.success"), used by
// the caller to tell success and failure replies apart and to locate
// the originating step.
type ReplyHandler func(ctx context.Context, sagaID int64, taskName string, payload map[string]any) error

// Broker is the messaging collaborator a saga orchestrator publishes
// outbound step messages to and registers reply handlers with.
// Implementations must be safe for concurrent use: the broker handle is
// shared across saga instances.
type Broker interface {
	// SendTask publishes a task named taskName to queue, with the
	// positional argument vector [sagaID, payload]. Returns the
	// broker-assigned message identifier.
	SendTask(ctx context.Context, queue, taskName string, sagaID int64, payload map[string]any) (string, error)

	// BindHandler registers handler to be invoked for every inbound task
	// named taskName. Binding the same taskName twice replaces the prior
	// handler in the memory adapter and is adapter-defined elsewhere.
	BindHandler(taskName string, handler ReplyHandler) error

	// Close releases any resources held by the broker (connections,
	// background consumer loops).
	Close() error
}
