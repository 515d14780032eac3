package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store/memstore"
)

type fakeSessions struct {
	mu      sync.Mutex
	prompts []string
	fail    bool
	handler map[string]adapter.NotificationHandler
	killed  []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{handler: make(map[string]adapter.NotificationHandler)}
}

func (f *fakeSessions) CreateSession(ctx context.Context, sessionID, provider, workspaceID, cwd string, handler adapter.NotificationHandler, opts adapter.SessionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("spawn failed")
	}
	f.handler[sessionID] = handler
	return "provider-" + sessionID, nil
}

func (f *fakeSessions) Prompt(ctx context.Context, sessionID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, sessionID+":"+text)
	return nil
}

func (f *fakeSessions) KillSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, sessionID)
	return nil
}

func (f *fakeSessions) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeSpecialists struct {
	byRole map[string]domain.Specialist
}

func newFakeSpecialists() *fakeSpecialists {
	return &fakeSpecialists{byRole: map[string]domain.Specialist{
		"CRAFTER": {ID: "crafter", Name: "Crafter", Role: domain.RoleCrafter, DefaultModelTier: domain.ModelTierBalanced, SystemPrompt: "you craft"},
		"GATE":    {ID: "gate", Name: "Gate", Role: domain.RoleGate, DefaultModelTier: domain.ModelTierFast, SystemPrompt: "you review"},
	}}
}

func (f *fakeSpecialists) Resolve(ctx context.Context, specialist string) (domain.Specialist, error) {
	s, ok := f.byRole[specialist]
	if !ok {
		return domain.Specialist{}, errors.New("unknown")
	}
	return s, nil
}

type fakeReports struct {
	mu      sync.Mutex
	reports []Report
}

func (f *fakeReports) ReportToParent(ctx context.Context, agentID string, report Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memstore.Store, *fakeSessions) {
	t.Helper()
	st := memstore.New()
	sessions := newFakeSessions()
	o := New(Config{
		Sessions:    sessions,
		Store:       st,
		Specialists: newFakeSpecialists(),
		DefaultCwd:  "/tmp/work",
	})
	return o, st, sessions
}

func seedAgentAndTask(t *testing.T, st *memstore.Store, workspaceID string) (domain.Agent, domain.Task) {
	t.Helper()
	ctx := context.Background()
	agent := domain.Agent{ID: "coordinator-1", Name: "Coordinator", Role: domain.RoleCoordinator, WorkspaceID: workspaceID, Status: domain.AgentActive}
	require.NoError(t, st.Agents().Create(ctx, agent))

	task, err := st.Tasks().Create(ctx, domain.Task{
		ID: "task-1", Title: "Implement feature", Objective: "Ship the thing", WorkspaceID: workspaceID, Status: domain.TaskPending,
	})
	require.NoError(t, err)
	return agent, task
}

func TestDelegateTaskWithSpawnHappyPath(t *testing.T) {
	o, st, sessions := newTestOrchestrator(t)
	ctx := context.Background()
	agent, task := seedAgentAndTask(t, st, "ws-1")

	res, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AgentID)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "crafter", res.Specialist)
	assert.Equal(t, domain.WaitImmediate, res.WaitMode)

	child, err := st.Agents().Get(ctx, res.AgentID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, child.ParentID)
	assert.Equal(t, "1", child.Metadata[domain.MetaDelegationDepth])

	updated, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, updated.Status)
	assert.Equal(t, res.AgentID, updated.AssignedTo)

	require.Eventually(t, func() bool { return sessions.promptCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDelegateTaskWithSpawnDepthGuard(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	deepAgent := domain.Agent{
		ID: "deep-1", Name: "Deep", Role: domain.RoleCrafter, WorkspaceID: "ws-1", Status: domain.AgentActive,
		Metadata: map[string]string{domain.MetaDelegationDepth: "2"},
	}
	require.NoError(t, st.Agents().Create(ctx, deepAgent))
	task, err := st.Tasks().Create(ctx, domain.Task{ID: "task-deep", Title: "x", Objective: "y", WorkspaceID: "ws-1", Status: domain.TaskPending})
	require.NoError(t, err)

	_, err = o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task.ID, CallerAgentID: deepAgent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER",
	})
	require.Error(t, err)
}

func TestDelegateTaskWithSpawnUnknownSpecialist(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	agent, task := seedAgentAndTask(t, st, "ws-1")

	_, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "NOBODY",
	})
	require.Error(t, err)
}

func TestDelegateTaskWithSpawnTaskLookupHint(t *testing.T) {
	assert.Contains(t, TaskLookupHint("12345678-1234-1234-1234-123456789abc"), "list_tasks")
	assert.Contains(t, TaskLookupHint("my-cool-task"), "create_task")
}

func TestHandleReportSubmittedWakesParent(t *testing.T) {
	o, st, sessions := newTestOrchestrator(t)
	ctx := context.Background()
	agent, task := seedAgentAndTask(t, st, "ws-1")

	res, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER",
	})
	require.NoError(t, err)

	completed, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	_, err = st.Tasks().AtomicUpdate(ctx, completed.ID, completed.Version, func(tk *domain.Task) {
		tk.Status = domain.TaskCompleted
		tk.CompletionSummary = "done"
	})
	require.NoError(t, err)

	o.HandleReportSubmitted(ctx, res.AgentID, Report{TaskID: task.ID, Summary: "done", Success: true})

	require.Eventually(t, func() bool { return sessions.promptCount() >= 1 }, time.Second, 5*time.Millisecond)
	o.mu.Lock()
	_, stillTracked := o.children[res.AgentID]
	o.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestHandleChildErrorMarksNeedsFix(t *testing.T) {
	o, st, sessions := newTestOrchestrator(t)
	ctx := context.Background()
	agent, task := seedAgentAndTask(t, st, "ws-1")

	res, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER",
	})
	require.NoError(t, err)

	o.handleChildError(ctx, res.AgentID, errors.New("boom"))

	childAgent, err := st.Agents().Get(ctx, res.AgentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentError, childAgent.Status)

	updatedTask, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskNeedsFix, updatedTask.Status)
	assert.Contains(t, updatedTask.CompletionSummary, "boom")

	require.Eventually(t, func() bool { return sessions.promptCount() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestAfterAllWaitModeWakesOnceGroupCompletes(t *testing.T) {
	o, st, sessions := newTestOrchestrator(t)
	ctx := context.Background()
	agent, task1 := seedAgentAndTask(t, st, "ws-1")
	task2, err := st.Tasks().Create(ctx, domain.Task{ID: "task-2", Title: "second", Objective: "y", WorkspaceID: "ws-1", Status: domain.TaskPending})
	require.NoError(t, err)

	res1, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task1.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER", WaitMode: domain.WaitAfterAll,
	})
	require.NoError(t, err)
	res2, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task2.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER", WaitMode: domain.WaitAfterAll,
	})
	require.NoError(t, err)

	// Wait for both children's initial prompt sends to land before exercising
	// completion, so the counter below isolates the wake-up prompt.
	require.Eventually(t, func() bool { return sessions.promptCount() == 2 }, time.Second, 5*time.Millisecond)

	o.HandleReportSubmitted(ctx, res1.AgentID, Report{TaskID: task1.ID, Summary: "first done", Success: true})
	// Only the first child of the group finished: no wake yet.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, sessions.promptCount())

	o.HandleReportSubmitted(ctx, res2.AgentID, Report{TaskID: task2.ID, Summary: "second done", Success: true})
	require.Eventually(t, func() bool { return sessions.promptCount() == 3 }, time.Second, 5*time.Millisecond)

	o.mu.Lock()
	_, groupStillActive := o.groups[agent.ID]
	o.mu.Unlock()
	assert.False(t, groupStillActive)
}

func TestAutoReportSettlesWhenChildNeverReports(t *testing.T) {
	st := memstore.New()
	sessions := newFakeSessions()
	reports := &fakeReports{}
	o := New(Config{
		Sessions:    sessions,
		Store:       st,
		Specialists: newFakeSpecialists(),
		Reports:     reports,
		DefaultCwd:  "/tmp/work",
	})
	ctx := context.Background()
	agent, task := seedAgentAndTask(t, st, "ws-1")

	_, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		reports.mu.Lock()
		defer reports.mu.Unlock()
		return len(reports.reports) == 1
	}, AutoReportSettleDelay+500*time.Millisecond, 20*time.Millisecond)

	reports.mu.Lock()
	got := reports.reports[0]
	reports.mu.Unlock()
	assert.Equal(t, task.ID, got.TaskID)
	assert.True(t, got.Success)
}

func TestCleanupKillsChildSessions(t *testing.T) {
	o, st, sessions := newTestOrchestrator(t)
	ctx := context.Background()
	agent, task := seedAgentAndTask(t, st, "ws-1")

	res, err := o.DelegateTaskWithSpawn(ctx, DelegateRequest{
		TaskID: task.ID, CallerAgentID: agent.ID, CallerSessionID: "sess-parent",
		WorkspaceID: "ws-1", Specialist: "CRAFTER",
	})
	require.NoError(t, err)

	o.Cleanup(ctx, "sess-parent")

	sessions.mu.Lock()
	killed := sessions.killed
	sessions.mu.Unlock()
	require.Len(t, killed, 1)
	assert.Equal(t, res.SessionID, killed[0])

	o.mu.Lock()
	_, stillTracked := o.children[res.AgentID]
	o.mu.Unlock()
	assert.False(t, stillTracked)
}
