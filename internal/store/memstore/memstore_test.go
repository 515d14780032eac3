package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/store/memstore"
)

func TestWorkspaceDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	ws := domain.Workspace{ID: "w1", Title: "demo"}
	require.NoError(t, s.Workspaces().Create(ctx, ws))
	require.NoError(t, s.Codebases().Create(ctx, domain.Codebase{ID: "c1", WorkspaceID: "w1"}))
	require.NoError(t, s.Agents().Create(ctx, domain.Agent{ID: "a1", WorkspaceID: "w1"}))
	_, err := s.Tasks().Create(ctx, domain.Task{ID: "t1", WorkspaceID: "w1"})
	require.NoError(t, err)

	require.NoError(t, s.Workspaces().Delete(ctx, "w1"))

	_, err = s.Workspaces().Get(ctx, "w1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	cbs, err := s.Codebases().ListByWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, cbs)

	agents, err := s.Agents().ListByWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, agents)

	tasks, err := s.Tasks().ListByWorkspace(ctx, "w1", store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskAtomicUpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	created, err := s.Tasks().Create(ctx, domain.Task{ID: "t1", WorkspaceID: "w1", Status: domain.TaskPending})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	updated, err := s.Tasks().AtomicUpdate(ctx, "t1", 1, func(tk *domain.Task) {
		tk.Status = domain.TaskInProgress
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, updated.Status)
	assert.Equal(t, 2, updated.Version)

	_, err = s.Tasks().AtomicUpdate(ctx, "t1", 1, func(tk *domain.Task) {
		tk.Status = domain.TaskCompleted
	})
	require.Error(t, err)
	assert.Equal(t, apierr.KindVersionConflict, apierr.KindOf(err))

	stored, err := s.Tasks().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, stored.Status, "failed update must not mutate stored task")
}

func TestBackgroundTaskListReadyOrdering(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	base := domain.BackgroundTask{WorkspaceID: "w1", Status: domain.BackgroundPending}

	low := base
	low.ID, low.Priority = "low", domain.PriorityLow
	low.CreatedAt = low.CreatedAt.Add(1)
	require.NoError(t, s.BackgroundTasks().Create(ctx, low))

	high := base
	high.ID, high.Priority = "high", domain.PriorityHigh
	require.NoError(t, s.BackgroundTasks().Create(ctx, high))

	blocked := base
	blocked.ID = "blocked"
	blocked.DependsOnTaskIDs = []string{"high"}
	require.NoError(t, s.BackgroundTasks().Create(ctx, blocked))

	ready, err := s.BackgroundTasks().ListReady(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "high", ready[0].ID)
	assert.Equal(t, "low", ready[1].ID)
}
