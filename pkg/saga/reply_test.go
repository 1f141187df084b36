package saga_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdean-oss/sagaorch/pkg/saga"
	"github.com/kdean-oss/sagaorch/pkg/saga/broker/memory"
)

type fakeDeduper struct {
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) MarkReplySeen(_ context.Context, sagaID int64, replyTaskName string) (bool, error) {
	key := replyTaskName
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

func TestRouterDiscardsAlreadySeenReply(t *testing.T) {
	var dispatches int

	def := &saga.Definition{
		Name: "with-async",
		Steps: []saga.Step{
			{
				Name:         "charge",
				Kind:         saga.Async,
				BaseTaskName: "charge_card",
				Queue:        "payments",
				OnSuccess: func(_ context.Context, _ *saga.Instance, _ *saga.Step, _ map[string]any) error {
					dispatches++
					return nil
				},
			},
		},
	}
	require.NoError(t, def.Validate())

	brk := memory.New()
	defer brk.Close()

	newInstance := func(sagaID int64) *saga.Instance {
		return saga.NewInstance(def, sagaID, brk)
	}

	deduper := newFakeDeduper()
	router := saga.NewRouter(def, saga.NewBaseEngine(), newInstance, saga.WithReplyDeduper(deduper))
	require.NoError(t, router.Bind(brk))

	taskName := saga.SuccessTaskName("charge_card")
	_, err := brk.SendTask(context.Background(), "replies", taskName, 1, map[string]any{})
	require.NoError(t, err)
	_, err = brk.SendTask(context.Background(), "replies", taskName, 1, map[string]any{})
	require.NoError(t, err)

	brk.Close()
	assert.Equal(t, 1, dispatches, "a redelivered reply must not re-dispatch")
}

type fakeStatusChecker struct {
	status string
	found  bool
}

func (c *fakeStatusChecker) GetSagaStatus(_ context.Context, _ int64) (string, bool, error) {
	return c.status, c.found, nil
}

func TestRouterDiscardsReplyForTerminalSaga(t *testing.T) {
	var dispatched bool

	def := &saga.Definition{
		Name: "with-async",
		Steps: []saga.Step{
			{
				Name:         "charge",
				Kind:         saga.Async,
				BaseTaskName: "charge_card",
				Queue:        "payments",
				OnSuccess: func(_ context.Context, _ *saga.Instance, _ *saga.Step, _ map[string]any) error {
					dispatched = true
					return nil
				},
			},
		},
	}
	require.NoError(t, def.Validate())

	brk := memory.New()
	defer brk.Close()

	newInstance := func(sagaID int64) *saga.Instance {
		return saga.NewInstance(def, sagaID, brk)
	}

	checker := &fakeStatusChecker{status: "failed", found: true}
	router := saga.NewRouter(def, saga.NewBaseEngine(), newInstance, saga.WithTerminalStatusChecker(checker))
	require.NoError(t, router.Bind(brk))

	taskName := saga.SuccessTaskName("charge_card")
	_, err := brk.SendTask(context.Background(), "replies", taskName, 1, map[string]any{})
	require.NoError(t, err)

	brk.Close()
	assert.False(t, dispatched, "a reply for an already-terminal saga must not be dispatched")
}

func TestRouterDispatchesReplyWhenSagaNotTerminal(t *testing.T) {
	var dispatched bool

	def := &saga.Definition{
		Name: "with-async",
		Steps: []saga.Step{
			{
				Name:         "charge",
				Kind:         saga.Async,
				BaseTaskName: "charge_card",
				Queue:        "payments",
				OnSuccess: func(_ context.Context, _ *saga.Instance, _ *saga.Step, _ map[string]any) error {
					dispatched = true
					return nil
				},
			},
		},
	}
	require.NoError(t, def.Validate())

	brk := memory.New()
	defer brk.Close()

	newInstance := func(sagaID int64) *saga.Instance {
		return saga.NewInstance(def, sagaID, brk)
	}

	checker := &fakeStatusChecker{status: "charge.running", found: true}
	router := saga.NewRouter(def, saga.NewBaseEngine(), newInstance, saga.WithTerminalStatusChecker(checker))
	require.NoError(t, router.Bind(brk))

	taskName := saga.SuccessTaskName("charge_card")
	_, err := brk.SendTask(context.Background(), "replies", taskName, 1, map[string]any{})
	require.NoError(t, err)

	brk.Close()
	assert.True(t, dispatched, "a reply for a saga still in progress must be dispatched")
}
