// Package observability provides structured logging, OpenTelemetry
// metrics, and OpenTelemetry tracing for saga execution. Every feature
// is opt-in and backed by a no-op implementation when disabled, so
// instrumenting a saga never forces a collector dependency on callers
// who don't want one.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger with saga_id and step_name fields
// attached, for use across one step's forward action, compensation, or
// reply handling.
func EnrichLogger(logger *slog.Logger, sagaID int64, stepName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.Int64("saga_id", sagaID),
		slog.String("step_name", stepName),
	)
}

// LogSagaStart logs the start of a saga's forward execution.
func LogSagaStart(logger *slog.Logger, sagaID int64, sagaName string) {
	if logger == nil {
		return
	}
	logger.Info("saga starting", slog.Int64("saga_id", sagaID), slog.String("saga_name", sagaName))
}

// LogSagaSuccess logs successful saga completion.
func LogSagaSuccess(logger *slog.Logger, sagaID int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("saga succeeded", slog.Int64("saga_id", sagaID), slog.Float64("duration_ms", durationMs))
}

// LogSagaFailure logs saga failure once compensation has completed.
func LogSagaFailure(logger *slog.Logger, sagaID int64, failedStep string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("saga failed",
		slog.Int64("saga_id", sagaID),
		slog.String("failed_step", failedStep),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogCompensationStuck logs an unrecoverable compensation failure — the
// saga is left in an operator-attention state.
func LogCompensationStuck(logger *slog.Logger, sagaID int64, compensationFailedStep string, err error) {
	if logger == nil {
		return
	}
	logger.Error("compensation stuck",
		slog.Int64("saga_id", sagaID),
		slog.String("compensation_failed_step", compensationFailedStep),
		slog.String("error", err.Error()),
	)
}

// LogStepStart logs a step action starting.
func LogStepStart(logger *slog.Logger, stepName string) {
	if logger == nil {
		return
	}
	logger.Debug("step starting", slog.String("step_name", stepName))
}

// LogStepSuccess logs a step action completing.
func LogStepSuccess(logger *slog.Logger, stepName string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("step succeeded", slog.String("step_name", stepName), slog.Float64("duration_ms", durationMs))
}

// LogStepFailure logs a step action's failure.
func LogStepFailure(logger *slog.Logger, stepName string, err error) {
	if logger == nil {
		return
	}
	logger.Error("step failed", slog.String("step_name", stepName), slog.String("error", err.Error()))
}

// LogReplyDropped logs an inbound reply that the reply router discards
// without dispatching; reason says why (no async step matches the task
// name, the reply is a redelivery, or the saga is already terminal).
func LogReplyDropped(logger *slog.Logger, sagaID int64, taskName string, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("reply dropped",
		slog.Int64("saga_id", sagaID),
		slog.String("task_name", taskName),
		slog.String("reason", reason),
	)
}

// TimedOperation returns a function that, when called, reports elapsed
// milliseconds since TimedOperation was invoked.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
