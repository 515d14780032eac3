package background_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/background"
	"github.com/fleetctl/core/internal/domain"
)

func TestRunWorkflowGroupsConsecutiveParallelSteps(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	def := domain.WorkflowDefinition{
		ID: "wf-1", Name: "build-and-verify",
		Variables: map[string]string{"target": "api"},
		Steps: []domain.WorkflowStep{
			{Name: "lint", Specialist: "CRAFTER", Input: "lint ${target}", ParallelGroup: "fanout"},
			{Name: "unit", Specialist: "CRAFTER", Input: "test ${target}", ParallelGroup: "fanout"},
			{Name: "verify", Specialist: "GATE", Input: "verify ${trigger.payload}"},
		},
	}

	go func() {
		for i := 0; i < 40; i++ {
			_ = eng.DrainReady(ctx, "ws-1")
			time.Sleep(25 * time.Millisecond)
		}
	}()

	run, err := eng.RunWorkflow(ctx, background.RunWorkflowRequest{
		Definition: def, WorkspaceID: "ws-1", TriggerSource: domain.TriggerManual, TriggerPayload: "payload-123",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowRunCompleted, run.Status)
	assert.Equal(t, 3, run.CompletedSteps)

	tasks, err := st.BackgroundTasks().ListRunning(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
