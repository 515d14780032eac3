package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"

	"github.com/fleetctl/core/internal/engine"
)

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Options{TaskQueue: "bg-tasks"})
	assert.ErrorContains(t, err, "Client is required")
}

func TestNewRequiresTaskQueue(t *testing.T) {
	_, err := New(Options{Client: stubClient{}, TaskQueue: ""})
	assert.ErrorContains(t, err, "TaskQueue is required")
}

// stubClient satisfies client.Client's identity-only requirement for this
// validation test (New never dials out before checking TaskQueue).
type stubClient struct{ client.Client }

func TestStepRegistryRoundTripsByToken(t *testing.T) {
	r := newStepRegistry()
	var gotName string
	token := r.register(func(ctx context.Context, req engine.StepRequest) engine.StepResult {
		gotName = req.StepName
		return engine.StepResult{Output: "done"}
	})

	res, err := r.invoke(context.Background(), token, engine.StepRequest{StepName: "build"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, "build", gotName)

	r.unregister(token)
	_, err = r.invoke(context.Background(), token, engine.StepRequest{StepName: "build"})
	assert.Error(t, err)
}
