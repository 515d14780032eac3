package background

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/domain"
)

func TestGroupStepsSplitsOnChangingParallelGroup(t *testing.T) {
	steps := []domain.WorkflowStep{
		{Name: "a", ParallelGroup: "x"},
		{Name: "b", ParallelGroup: "x"},
		{Name: "c"},
		{Name: "d", ParallelGroup: "y"},
	}
	groups := groupSteps(steps)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
	assert.Len(t, groups[2], 1)
}

func TestSubstituteResolvesTriggerAndVariableTokens(t *testing.T) {
	out := substitute("review ${trigger.payload} for ${variables.target} aka ${target}",
		map[string]string{"target": "api"}, "pr-42")
	assert.Equal(t, "review pr-42 for api aka api", out)
}
