package saga

import (
	"context"
	"fmt"

	"github.com/kdean-oss/sagaorch/pkg/saga/broker"
	"github.com/kdean-oss/sagaorch/pkg/saga/observability"
)

// ReplyDeduper marks a reply as applied and reports whether it had
// already been seen, so a literal redelivery of the same
// (sagaID, replyTaskName) pair can be discarded. state.Repository
// satisfies this interface structurally (no import on either side); a
// Router for a stateless saga type simply never sets one, and every
// reply is processed normally.
type ReplyDeduper interface {
	MarkReplySeen(ctx context.Context, sagaID int64, replyTaskName string) (alreadySeen bool, err error)
}

// TerminalStatusChecker reports whether a saga has already reached a
// terminal status, so a late reply — one that arrives after the saga
// has already concluded locally, e.g. an async step's own dispatch
// Action failed, compensation already ran to completion, and only
// afterward does the remote side's first-ever success reply show up —
// is logged and discarded instead of re-entering forward execution or
// compensation. state.Repository satisfies this interface structurally;
// a Router for a stateless saga type never sets one, since there is
// nowhere to check terminality and a late reply is processed normally.
type TerminalStatusChecker interface {
	GetSagaStatus(ctx context.Context, sagaID int64) (status string, found bool, err error)
}

// terminalStatuses are the saga-level statuses a state.Repository
// writes that mean the saga will never advance again: succeeded,
// failed, or stuck mid-compensation awaiting operator attention.
var terminalStatuses = map[string]bool{
	"succeeded":          true,
	"failed":             true,
	"compensation_stuck": true,
}

// Router binds one saga definition's async steps to broker reply
// handlers. Per the core spec's stateless-reply contract, it never holds
// a suspended Instance in memory: every inbound reply reconstructs a
// fresh Instance from the delivered saga_id via newInstance, then
// dispatches it through engine.
type Router struct {
	def           *Definition
	engine        Engine
	newInstance   func(sagaID int64) *Instance
	deduper       ReplyDeduper
	statusChecker TerminalStatusChecker
}

// RouterOption configures a Router at construction time.
type RouterOption func(*Router)

// WithReplyDeduper attaches a ReplyDeduper a stateful saga type uses to
// discard a literal redelivery. If deduper also implements
// TerminalStatusChecker (as state.Repository does), the terminal-status
// guard is wired from the same value — a repository-backed caller needs
// only pass it once. See §11.4 of the expanded specification.
func WithReplyDeduper(deduper ReplyDeduper) RouterOption {
	return func(r *Router) {
		r.deduper = deduper
		if checker, ok := deduper.(TerminalStatusChecker); ok {
			r.statusChecker = checker
		}
	}
}

// WithTerminalStatusChecker attaches the terminal-status guard
// independently of WithReplyDeduper, for a deduper that doesn't also
// implement TerminalStatusChecker.
func WithTerminalStatusChecker(checker TerminalStatusChecker) RouterOption {
	return func(r *Router) {
		r.statusChecker = checker
	}
}

// NewRouter builds a Router for def. newInstance must return an Instance
// bound to sagaID, def, and a broker — ready to resume Execute from
// wherever the reply lands it. If engine is nil, a plain BaseEngine is
// used.
func NewRouter(def *Definition, engine Engine, newInstance func(sagaID int64) *Instance, opts ...RouterOption) *Router {
	if engine == nil {
		engine = NewBaseEngine()
	}
	r := &Router{def: def, engine: engine, newInstance: newInstance}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind registers a reply handler with brk for every async step's derived
// success and failure task names. Call once per definition at startup,
// before any saga of this type is executed.
func (r *Router) Bind(brk broker.Broker) error {
	for _, step := range r.def.AsyncSteps() {
		if err := brk.BindHandler(step.successTaskName(), r.handleReply); err != nil {
			return fmt.Errorf("saga %q: bind success handler for step %q: %w", r.def.Name, step.Name, err)
		}
		if err := brk.BindHandler(step.failureTaskName(), r.handleReply); err != nil {
			return fmt.Errorf("saga %q: bind failure handler for step %q: %w", r.def.Name, step.Name, err)
		}
	}
	return nil
}

// handleReply is the broker.ReplyHandler bound to every derived reply
// task name. It first checks whether the saga has already reached a
// terminal status (a late reply, per the core spec's Open Question on
// replies arriving after local failure) and whether this exact reply
// was already applied (a literal redelivery); either discards the
// reply. Otherwise it reconstructs the saga instance, resolves which
// step and outcome taskName names, and dispatches to
// DispatchReplySuccess or DispatchReplyFailure. An unroutable task name
// (naming drift between what was bound and what a stale or foreign
// producer sends) is logged and returned as an error rather than
// silently dropped.
func (r *Router) handleReply(ctx context.Context, sagaID int64, taskName string, payload map[string]any) error {
	inst := r.newInstance(sagaID)

	if r.statusChecker != nil {
		status, found, err := r.statusChecker.GetSagaStatus(ctx, sagaID)
		if err != nil {
			return fmt.Errorf("saga %q: get saga status for saga %d task %q: %w", r.def.Name, sagaID, taskName, err)
		}
		if found && terminalStatuses[status] {
			observability.LogReplyDropped(inst.logger(), sagaID, taskName, fmt.Sprintf("saga already terminal (%s)", status))
			return nil
		}
	}

	if r.deduper != nil {
		alreadySeen, err := r.deduper.MarkReplySeen(ctx, sagaID, taskName)
		if err != nil {
			return fmt.Errorf("saga %q: mark reply seen for saga %d task %q: %w", r.def.Name, sagaID, taskName, err)
		}
		if alreadySeen {
			observability.LogReplyDropped(inst.logger(), sagaID, taskName, "redelivered reply")
			return nil
		}
	}

	if step, err := r.def.stepBySuccessTaskName(taskName); err == nil {
		return DispatchReplySuccess(ctx, r.engine, inst, step, payload)
	}

	step, err := r.def.stepByFailureTaskName(taskName)
	if err != nil {
		observability.LogReplyDropped(inst.logger(), sagaID, taskName, "no step bound to this reply task name")
		return err
	}
	return DispatchReplyFailure(ctx, r.engine, inst, step, payload)
}
