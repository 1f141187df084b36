// Package stephandler provides the producer-side half of the async
// reply contract: a thin decorator a remote step handler can wrap
// around its business logic so it automatically emits
// "<task>.response.success" or "<task>.response.failure" back to the
// orchestrator, serializing any returned error into the wire error
// payload.
//
// The core saga package only ever consumes replies; it has no opinion
// on how a step handler produces them. This package exists so that
// contract is exercised from the producer side too, not just asserted
// in the orchestrator's own tests.
package stephandler

import (
	"context"
	"log/slog"

	"github.com/kdean-oss/sagaorch/pkg/saga"
	"github.com/kdean-oss/sagaorch/pkg/saga/broker"
)

// StepFunc is a remote step handler's business logic: given the saga id
// and the forward task's payload, it does the work and returns a result
// payload, or an error if the step failed.
type StepFunc func(ctx context.Context, sagaID int64, payload map[string]any) (map[string]any, error)

// Wrap adapts fn into a broker.ReplyHandler suitable for binding to the
// forward task named taskName: after fn runs, it publishes
// saga.SuccessTaskName(taskName) with fn's result, or
// saga.FailureTaskName(taskName) with a serialized error payload, to
// replyQueue.
//
// Bind the returned handler to taskName on the service's own inbound
// broker, not to the orchestrator's reply broker — this wraps the
// consumer of the forward task, not the orchestrator's reply router.
func Wrap(taskName string, brk broker.Broker, replyQueue string, fn StepFunc) broker.ReplyHandler {
	return wrap(taskName, brk, replyQueue, fn, slog.Default())
}

// WrapWithLogger behaves like Wrap but logs failures to logger instead
// of the default logger.
func WrapWithLogger(taskName string, brk broker.Broker, replyQueue string, fn StepFunc, logger *slog.Logger) broker.ReplyHandler {
	return wrap(taskName, brk, replyQueue, fn, logger)
}

func wrap(taskName string, brk broker.Broker, replyQueue string, fn StepFunc, logger *slog.Logger) broker.ReplyHandler {
	return func(ctx context.Context, sagaID int64, _ string, payload map[string]any) error {
		result, stepErr := fn(ctx, sagaID, payload)

		responseTaskName := saga.SuccessTaskName(taskName)
		responsePayload := result
		if stepErr != nil {
			if logger != nil {
				logger.Error("step handler failed",
					slog.String("task_name", taskName),
					slog.Int64("saga_id", sagaID),
					slog.String("error", stepErr.Error()),
				)
			}
			responseTaskName = saga.FailureTaskName(taskName)
			responsePayload = saga.SerializeError(stepErr).ToMap()
		}

		_, err := brk.SendTask(ctx, replyQueue, responseTaskName, sagaID, responsePayload)
		return err
	}
}

// WrapNoResponse adapts fn into a broker.ReplyHandler that runs fn but
// never publishes a response, for fire-and-forget steps with no
// orchestrator waiting on a reply. Equivalent to the original's
// no_response_saga_step_handler.
func WrapNoResponse(fn StepFunc) broker.ReplyHandler {
	return func(ctx context.Context, sagaID int64, _ string, payload map[string]any) error {
		_, err := fn(ctx, sagaID, payload)
		return err
	}
}
