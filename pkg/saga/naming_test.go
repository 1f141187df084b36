package saga_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kdean-oss/sagaorch/pkg/saga"
)

func TestSuccessTaskName(t *testing.T) {
	assert.Equal(t, "create_ticket.response.success", saga.SuccessTaskName("create_ticket"))
}

func TestFailureTaskName(t *testing.T) {
	assert.Equal(t, "create_ticket.response.failure", saga.FailureTaskName("create_ticket"))
}
