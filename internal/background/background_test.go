package background_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/background"
	"github.com/fleetctl/core/internal/bridge"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/engine/inmem"
	"github.com/fleetctl/core/internal/store/memstore"
)

type fakeSpawner struct {
	sessions map[string]string
	prompts  []string
	failNext bool
}

func newFakeSpawner() *fakeSpawner { return &fakeSpawner{sessions: map[string]string{}} }

func (f *fakeSpawner) CreateSession(ctx context.Context, sessionID, provider, workspaceID, cwd string, handler adapter.NotificationHandler, opts adapter.SessionOptions) (string, error) {
	providerSessionID := "provider-" + sessionID
	f.sessions[sessionID] = providerSessionID
	return providerSessionID, nil
}

func (f *fakeSpawner) Prompt(ctx context.Context, sessionID, text string) error {
	f.prompts = append(f.prompts, text)
	return nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, specialist string) (domain.Specialist, error) {
	return domain.Specialist{Name: specialist, Role: domain.RoleCrafter}, nil
}

func newTestEngine(t *testing.T) (*background.Engine, *memstore.Store, *fakeSpawner) {
	t.Helper()
	st := memstore.New()
	spawner := newFakeSpawner()
	br := bridge.New(bridge.ACPNormalizer{}, nil)
	eng := background.New(background.Config{
		Store:       st,
		Sessions:    spawner,
		Specialists: fakeResolver{},
		Bridge:      br,
		DAG:         inmem.New(),
		WorkerID:    "test-worker",
	})
	return eng, st, spawner
}

func TestEnqueueDefaultsStatusAndID(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	task, err := eng.Enqueue(context.Background(), domain.BackgroundTask{Title: "sweep", Prompt: "do it", WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.BackgroundPending, task.Status)
	assert.Equal(t, background.DefaultMaxAttempts, task.MaxAttempts)
}

func TestDrainReadyRunsPendingTaskToCompletion(t *testing.T) {
	eng, st, spawner := newTestEngine(t)
	ctx := context.Background()

	task, err := eng.Enqueue(ctx, domain.BackgroundTask{
		Title: "sweep", Prompt: "scan the repo", WorkspaceID: "ws-1", Specialist: "CRAFTER",
	})
	require.NoError(t, err)

	require.NoError(t, eng.DrainReady(ctx, "ws-1"))

	require.Eventually(t, func() bool {
		got, err := st.BackgroundTasks().Get(ctx, task.ID)
		return err == nil && got.Status == domain.BackgroundCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := st.BackgroundTasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "provider-"+task.ID, got.ResultSessionID)
	assert.Contains(t, spawner.prompts, "scan the repo")
}

func TestDrainReadySkipsTasksWithIncompleteDependencies(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	blocked, err := eng.Enqueue(ctx, domain.BackgroundTask{
		Title: "depends", Prompt: "later", WorkspaceID: "ws-1", DependsOnTaskIDs: []string{"missing-dep"},
	})
	require.NoError(t, err)

	require.NoError(t, eng.DrainReady(ctx, "ws-1"))
	time.Sleep(50 * time.Millisecond)

	got, err := st.BackgroundTasks().Get(ctx, blocked.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BackgroundPending, got.Status)
}

func TestReclaimOrphansResetsStaleRunningTask(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	task, err := eng.Enqueue(ctx, domain.BackgroundTask{Title: "stuck", Prompt: "x", WorkspaceID: "ws-1"})
	require.NoError(t, err)
	task.Status = domain.BackgroundRunning
	task.StartedAt = time.Now().Add(-time.Hour)
	require.NoError(t, st.BackgroundTasks().Update(ctx, task))

	require.NoError(t, eng.ReclaimOrphans(ctx, "ws-1"))

	got, err := st.BackgroundTasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BackgroundPending, got.Status)
}

func TestReclaimOrphansFailsTaskBeyondMaxAttempts(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	task, err := eng.Enqueue(ctx, domain.BackgroundTask{Title: "stuck", Prompt: "x", WorkspaceID: "ws-1"})
	require.NoError(t, err)
	task.Status = domain.BackgroundRunning
	task.StartedAt = time.Now().Add(-time.Hour)
	task.Attempts = task.MaxAttempts
	require.NoError(t, st.BackgroundTasks().Update(ctx, task))

	require.NoError(t, eng.ReclaimOrphans(ctx, "ws-1"))

	got, err := st.BackgroundTasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BackgroundFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}
