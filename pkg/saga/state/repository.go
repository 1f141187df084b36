// Package state provides the optional persistence layer from the core
// spec's §4.7: a Repository interface, two concrete stores (in-memory
// and SQLite), and a StatefulEngine decorator that wraps a saga.Engine
// and writes status transitions to a Repository around each delegated
// call.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by GetSagaStateByID when no record has
// been created for the given saga id.
var ErrRecordNotFound = errors.New("state: saga record not found")

// Record is one saga instance's persisted state.
type Record struct {
	SagaID    int64
	SagaName  string
	Status    string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository is the interface from the core spec's §4.7. Implementations
// must be safe for concurrent use: a saga's forward execution and its
// async reply dispatch may run on different goroutines.
type Repository interface {
	// Create persists a new record for sagaID, in status "new". It is
	// an error to create a record for a saga id that already exists.
	Create(ctx context.Context, sagaID int64, sagaName string) error

	// GetSagaStateByID retrieves the persisted record for sagaID.
	// Returns ErrRecordNotFound if no record exists.
	GetSagaStateByID(ctx context.Context, sagaID int64) (Record, error)

	// UpdateStatus transitions sagaID's record to status.
	UpdateStatus(ctx context.Context, sagaID int64, status string) error

	// Update merges fields into sagaID's record.
	Update(ctx context.Context, sagaID int64, fields map[string]any) error

	// OnStepFailure records the failure that triggered compensation,
	// named for the failed step and its serialized error payload.
	OnStepFailure(ctx context.Context, sagaID int64, failedStep string, initialFailure map[string]any) error

	// MarkReplySeen reports whether replyTaskName has already been
	// applied to sagaID, recording it as seen if not. This is pure
	// redelivery dedup — the same (sagaID, replyTaskName) pair delivered
	// twice — and says nothing about whether the saga has otherwise
	// concluded; see GetSagaStatus for that.
	MarkReplySeen(ctx context.Context, sagaID int64, replyTaskName string) (alreadySeen bool, err error)

	// GetSagaStatus reports sagaID's current status string, or
	// found=false if no record exists. It is the narrow, non-Record
	// accessor the reply router uses to discard a reply for a saga that
	// has already reached a terminal status (succeeded, failed, or
	// compensation_stuck) — see the core spec's Open Question on late
	// replies after local failure. Declared with only primitive types so
	// saga.TerminalStatusChecker can be satisfied structurally without
	// pkg/saga importing this package.
	GetSagaStatus(ctx context.Context, sagaID int64) (status string, found bool, err error)
}
