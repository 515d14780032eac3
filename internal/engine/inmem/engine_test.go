package inmem_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/engine"
	"github.com/fleetctl/core/internal/engine/inmem"
)

func TestRunGroupsExecutesStepsWithinGroupConcurrently(t *testing.T) {
	e := inmem.New()
	var running int32
	var sawConcurrent int32

	group := []engine.StepRequest{{StepName: "a"}, {StepName: "b"}, {StepName: "c"}}
	exec := func(ctx context.Context, req engine.StepRequest) engine.StepResult {
		atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		deadline := time.Now().Add(time.Second)
		for atomic.LoadInt32(&running) < int32(len(group)) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if atomic.LoadInt32(&running) > 1 {
			atomic.StoreInt32(&sawConcurrent, 1)
		}
		return engine.StepResult{Output: req.StepName}
	}

	results, err := e.RunGroups(context.Background(), [][]engine.StepRequest{group}, exec)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sawConcurrent))
}

func TestRunGroupsSerializesAcrossGroups(t *testing.T) {
	e := inmem.New()
	var order []string
	exec := func(ctx context.Context, req engine.StepRequest) engine.StepResult {
		order = append(order, req.StepName)
		return engine.StepResult{Output: req.StepName}
	}

	groups := [][]engine.StepRequest{
		{{StepName: "first"}},
		{{StepName: "second"}},
	}
	results, err := e.RunGroups(context.Background(), groups, exec)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRunGroupsStopsAfterFailedGroup(t *testing.T) {
	e := inmem.New()
	var secondGroupRan bool
	groups := [][]engine.StepRequest{
		{{StepName: "fails"}},
		{{StepName: "never"}},
	}
	exec := func(ctx context.Context, req engine.StepRequest) engine.StepResult {
		if req.StepName == "fails" {
			return engine.StepResult{Failed: true}
		}
		secondGroupRan = true
		return engine.StepResult{}
	}

	results, err := e.RunGroups(context.Background(), groups, exec)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.True(t, results[0].Failed)
	assert.False(t, secondGroupRan)
}
