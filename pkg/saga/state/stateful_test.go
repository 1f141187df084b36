package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdean-oss/sagaorch/pkg/saga"
	"github.com/kdean-oss/sagaorch/pkg/saga/broker/memory"
	"github.com/kdean-oss/sagaorch/pkg/saga/state"
)

// TestStatefulStatusTrace reproduces the core spec's "stateful status
// trace" scenario: a sync step A followed by an async step B. The
// observed status sequence must be step_A.running, step_A.succeeded,
// step_B.running (then suspend); after the reply arrives,
// step_B.succeeded, succeeded.
func TestStatefulStatusTrace(t *testing.T) {
	ctx := context.Background()

	def := &saga.Definition{
		Name: "two-step",
		Steps: []saga.Step{
			{Name: "step_A", Kind: saga.Sync},
			{
				Name:         "step_B",
				Kind:         saga.Async,
				BaseTaskName: "step_b_task",
				Queue:        "work",
				Action: func(ctx context.Context, inst *saga.Instance, step *saga.Step) error {
					_, err := saga.SendMessageToOtherService(ctx, inst, step, map[string]any{}, "")
					return err
				},
			},
		},
	}
	require.NoError(t, def.Validate())

	brk := memory.New()
	defer brk.Close()

	repo := state.NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, 1, def.Name))

	engine := state.NewStatefulEngine(nil, repo)

	newInstance := func(sagaID int64) *saga.Instance {
		return saga.NewInstance(def, sagaID, brk)
	}

	router := saga.NewRouter(def, engine, newInstance)
	require.NoError(t, router.Bind(brk))

	inst := newInstance(1)
	require.NoError(t, saga.Execute(ctx, engine, inst, nil))

	rec, err := repo.GetSagaStateByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "step_B.running", rec.Status, "saga must be suspended awaiting the async reply")

	_, err = brk.SendTask(ctx, "replies", saga.SuccessTaskName("step_b_task"), 1, map[string]any{})
	require.NoError(t, err)
	brk.Close()

	rec, err = repo.GetSagaStateByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rec.Status)
}

// TestStatefulCompensationRecordsFailureBeforeWalk verifies that
// BeforeCompensate records the triggering failure via Repository.
// OnStepFailure before any compensation runs, and that the terminal
// "failed" status lands once the walk completes without incident.
func TestStatefulCompensationRecordsFailureBeforeWalk(t *testing.T) {
	ctx := context.Background()

	def := &saga.Definition{
		Name: "compensating",
		Steps: []saga.Step{
			{Name: "reserve", Kind: saga.Sync},
			{
				Name: "charge",
				Kind: saga.Sync,
				Action: func(_ context.Context, _ *saga.Instance, _ *saga.Step) error {
					return assert.AnError
				},
			},
		},
	}
	require.NoError(t, def.Validate())

	brk := memory.New()
	defer brk.Close()

	repo := state.NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, 5, def.Name))

	engine := state.NewStatefulEngine(nil, repo)
	inst := saga.NewInstance(def, 5, brk)

	err := saga.Execute(ctx, engine, inst, nil)
	require.Error(t, err)

	rec, getErr := repo.GetSagaStateByID(ctx, 5)
	require.NoError(t, getErr)
	assert.Equal(t, "failed", rec.Status)
	assert.Equal(t, "charge", rec.Fields["failed_step"])
}

// TestStatefulCompensationStuckRecordsTerminalStatus verifies that when
// a compensation step itself fails, OnCompensationStuck persists the
// "compensation_stuck" terminal status rather than "failed" — the third
// status the reply router's late-reply guard checks for.
func TestStatefulCompensationStuckRecordsTerminalStatus(t *testing.T) {
	ctx := context.Background()

	def := &saga.Definition{
		Name: "stuck-compensating",
		Steps: []saga.Step{
			{
				Name: "reserve",
				Kind: saga.Sync,
				Compensation: func(_ context.Context, _ *saga.Instance, _ *saga.Step) error {
					return assert.AnError
				},
			},
			{
				Name: "charge",
				Kind: saga.Sync,
				Action: func(_ context.Context, _ *saga.Instance, _ *saga.Step) error {
					return assert.AnError
				},
			},
		},
	}
	require.NoError(t, def.Validate())

	brk := memory.New()
	defer brk.Close()

	repo := state.NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, 7, def.Name))

	engine := state.NewStatefulEngine(nil, repo)
	inst := saga.NewInstance(def, 7, brk)

	err := saga.Execute(ctx, engine, inst, nil)
	require.Error(t, err)

	rec, getErr := repo.GetSagaStateByID(ctx, 7)
	require.NoError(t, getErr)
	assert.Equal(t, "compensation_stuck", rec.Status)

	status, found, statusErr := repo.GetSagaStatus(ctx, 7)
	require.NoError(t, statusErr)
	assert.True(t, found)
	assert.Equal(t, "compensation_stuck", status)
}
