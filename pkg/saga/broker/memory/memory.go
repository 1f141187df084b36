// Package memory is an in-process broker.Broker, useful for tests and
// single-process deployments where no real message broker is available.
// It mirrors the concurrency shape of an in-memory pub/sub bus — a
// buffered work queue drained by a dedicated goroutine so SendTask never
// blocks on handler execution — adapted from fan-out delivery to the
// single-handler-per-task-name routing a saga reply needs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kdean-oss/sagaorch/pkg/saga/broker"
)

const defaultQueueSize = 256

// Broker is an in-memory broker.Broker. Tasks sent via SendTask are
// queued and delivered to whatever handler is currently bound for the
// task name, on the broker's own dispatch goroutine.
type Broker struct {
	mu       sync.RWMutex
	handlers map[string]broker.ReplyHandler

	queue chan task
	done  chan struct{}
	wg    sync.WaitGroup

	closed  atomic.Bool
	onError func(taskName string, err error)
}

type task struct {
	ctx      context.Context
	taskName string
	sagaID   int64
	payload  map[string]any
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithBufferSize sets the dispatch queue's buffer size. Default 256.
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queue = make(chan task, n)
		}
	}
}

// WithOnError registers a callback invoked when a dispatched task has no
// bound handler, or its handler returns an error.
func WithOnError(fn func(taskName string, err error)) Option {
	return func(b *Broker) {
		b.onError = fn
	}
}

// New constructs a Broker and starts its dispatch goroutine.
func New(opts ...Option) *Broker {
	b := &Broker{
		handlers: make(map[string]broker.ReplyHandler),
		queue:    make(chan task, defaultQueueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(1)
	go b.run()
	return b
}

var _ broker.Broker = (*Broker)(nil)

// SendTask implements broker.Broker.
func (b *Broker) SendTask(ctx context.Context, _ string, taskName string, sagaID int64, payload map[string]any) (string, error) {
	if b.closed.Load() {
		return "", fmt.Errorf("memory broker: closed")
	}

	id := uuid.NewString()
	t := task{ctx: ctx, taskName: taskName, sagaID: sagaID, payload: payload}

	select {
	case b.queue <- t:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.done:
		return "", fmt.Errorf("memory broker: closed")
	}
}

// BindHandler implements broker.Broker. Binding the same task name twice
// replaces the previously bound handler.
func (b *Broker) BindHandler(taskName string, handler broker.ReplyHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[taskName] = handler
	return nil
}

// Close implements broker.Broker. It stops the dispatch goroutine and
// waits for it to dispatch every task already queued.
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.done)
	b.wg.Wait()
	return nil
}

func (b *Broker) run() {
	defer b.wg.Done()
	for {
		select {
		case t := <-b.queue:
			b.dispatch(t)
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain dispatches any tasks already sitting in the queue at the moment
// Close was called, so a SendTask that happened-before Close is never
// silently discarded.
func (b *Broker) drain() {
	for {
		select {
		case t := <-b.queue:
			b.dispatch(t)
		default:
			return
		}
	}
}

func (b *Broker) dispatch(t task) {
	b.mu.RLock()
	handler, ok := b.handlers[t.taskName]
	b.mu.RUnlock()

	if !ok {
		b.reportError(t.taskName, fmt.Errorf("memory broker: no handler bound for task %q", t.taskName))
		return
	}
	if err := handler(t.ctx, t.sagaID, t.taskName, t.payload); err != nil {
		b.reportError(t.taskName, err)
	}
}

func (b *Broker) reportError(taskName string, err error) {
	if b.onError != nil {
		b.onError(taskName, err)
	}
}
