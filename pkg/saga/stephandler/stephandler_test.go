package stephandler_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdean-oss/sagaorch/pkg/saga"
	"github.com/kdean-oss/sagaorch/pkg/saga/broker/memory"
	"github.com/kdean-oss/sagaorch/pkg/saga/stephandler"
)

func TestWrapPublishesSuccessReply(t *testing.T) {
	brk := memory.New()
	defer brk.Close()

	var mu sync.Mutex
	var gotTaskName string
	var gotPayload map[string]any
	done := make(chan struct{})

	require.NoError(t, brk.BindHandler(saga.SuccessTaskName("charge_card"), func(_ context.Context, _ int64, taskName string, payload map[string]any) error {
		mu.Lock()
		gotTaskName, gotPayload = taskName, payload
		mu.Unlock()
		close(done)
		return nil
	}))

	handler := stephandler.Wrap("charge_card", brk, "saga-replies", func(_ context.Context, _ int64, payload map[string]any) (map[string]any, error) {
		return map[string]any{"charge_id": payload["amount"]}, nil
	})

	require.NoError(t, handler(context.Background(), 1, "charge_card", map[string]any{"amount": float64(42)}))
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "charge_card.response.success", gotTaskName)
	assert.Equal(t, float64(42), gotPayload["charge_id"])
}

func TestWrapPublishesFailureReplyWithSerializedError(t *testing.T) {
	brk := memory.New()
	defer brk.Close()

	var mu sync.Mutex
	var gotTaskName string
	var gotPayload map[string]any
	done := make(chan struct{})

	require.NoError(t, brk.BindHandler(saga.FailureTaskName("charge_card"), func(_ context.Context, _ int64, taskName string, payload map[string]any) error {
		mu.Lock()
		gotTaskName, gotPayload = taskName, payload
		mu.Unlock()
		close(done)
		return nil
	}))

	handler := stephandler.Wrap("charge_card", brk, "saga-replies", func(_ context.Context, _ int64, _ map[string]any) (map[string]any, error) {
		return nil, errors.New("card declined")
	})

	require.NoError(t, handler(context.Background(), 1, "charge_card", map[string]any{}))
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "charge_card.response.failure", gotTaskName)
	assert.Equal(t, "card declined", gotPayload["message"])
}

func TestWrapNoResponseNeverPublishes(t *testing.T) {
	brk := memory.New()
	defer brk.Close()

	called := false
	require.NoError(t, brk.BindHandler(saga.SuccessTaskName("notify"), func(_ context.Context, _ int64, _ string, _ map[string]any) error {
		called = true
		return nil
	}))

	handler := stephandler.WrapNoResponse(func(_ context.Context, _ int64, _ map[string]any) (map[string]any, error) {
		return nil, nil
	})

	require.NoError(t, handler(context.Background(), 1, "notify", map[string]any{}))
	assert.False(t, called, "no-response handler must not publish a reply")
}
