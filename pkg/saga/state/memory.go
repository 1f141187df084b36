package state

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository. Suitable for tests and
// single-process deployments; grounded on the teacher's MemoryStore
// (mutex-guarded map, copy-on-read/write so callers can't mutate shared
// state through a returned Record).
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[int64]*Record
	seen    map[int64]map[string]bool
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[int64]*Record),
		seen:    make(map[int64]map[string]bool),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, sagaID int64, sagaName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[sagaID]; exists {
		return fmt.Errorf("state: saga %d already exists", sagaID)
	}

	now := time.Now()
	r.records[sagaID] = &Record{
		SagaID:    sagaID,
		SagaName:  sagaName,
		Status:    "new",
		Fields:    make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// GetSagaStateByID implements Repository.
func (r *MemoryRepository) GetSagaStateByID(_ context.Context, sagaID int64) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[sagaID]
	if !exists {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateStatus implements Repository.
func (r *MemoryRepository) UpdateStatus(_ context.Context, sagaID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[sagaID]
	if !exists {
		return ErrRecordNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(_ context.Context, sagaID int64, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[sagaID]
	if !exists {
		return ErrRecordNotFound
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any, len(fields))
	}
	maps.Copy(rec.Fields, fields)
	rec.UpdatedAt = time.Now()
	return nil
}

// OnStepFailure implements Repository.
func (r *MemoryRepository) OnStepFailure(ctx context.Context, sagaID int64, failedStep string, initialFailure map[string]any) error {
	return r.Update(ctx, sagaID, map[string]any{
		"failed_step":     failedStep,
		"initial_failure": initialFailure,
	})
}

// MarkReplySeen implements Repository.
func (r *MemoryRepository) MarkReplySeen(_ context.Context, sagaID int64, replyTaskName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[sagaID]; !exists {
		return false, ErrRecordNotFound
	}

	taskSet, ok := r.seen[sagaID]
	if !ok {
		taskSet = make(map[string]bool)
		r.seen[sagaID] = taskSet
	}
	if taskSet[replyTaskName] {
		return true, nil
	}
	taskSet[replyTaskName] = true
	return false, nil
}

// GetSagaStatus implements Repository.
func (r *MemoryRepository) GetSagaStatus(ctx context.Context, sagaID int64) (string, bool, error) {
	rec, err := r.GetSagaStateByID(ctx, sagaID)
	if errors.Is(err, ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Status, true, nil
}

func cloneRecord(rec *Record) Record {
	out := *rec
	out.Fields = make(map[string]any, len(rec.Fields))
	maps.Copy(out.Fields, rec.Fields)
	return out
}
