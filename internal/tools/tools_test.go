package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/orchestrator"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/store/memstore"
)

type fakeDelegator struct {
	mu       sync.Mutex
	delegate orchestrator.DelegateRequest
	result   orchestrator.DelegateResult
	err      error
	reported []string
}

func (f *fakeDelegator) DelegateTaskWithSpawn(ctx context.Context, req orchestrator.DelegateRequest) (orchestrator.DelegateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delegate = req
	return f.result, f.err
}

func (f *fakeDelegator) HandleReportSubmitted(ctx context.Context, childAgentID string, report orchestrator.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, childAgentID)
}

func newTestEndpoint(t *testing.T) (*Endpoint, *memstore.Store, *fakeDelegator) {
	t.Helper()
	st := memstore.New()
	d := &fakeDelegator{}
	e := New(Config{Store: st, Delegator: d})
	return e, st, d
}

func TestCreateTaskRequiresFields(t *testing.T) {
	e, _, _ := newTestEndpoint(t)
	res := e.CreateTask(context.Background(), CreateTaskInput{WorkspaceID: "ws-1"})
	assert.False(t, res.Success)
}

func TestCreateTaskFoldsParentIntoDependencies(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()

	res := e.CreateTask(ctx, CreateTaskInput{
		Title: "child", Objective: "do the thing", WorkspaceID: "ws-1",
		ParentTaskID: "parent-1", Dependencies: []string{"dep-1"},
	})
	require.True(t, res.Success)
	data := res.Data.(map[string]string)
	taskID := data["taskId"]
	require.NotEmpty(t, taskID)

	tasks, err := st.Tasks().ListByWorkspace(ctx, "ws-1", store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.ElementsMatch(t, []string{"dep-1", "parent-1"}, tasks[0].Dependencies)
}

func TestListTasksFiltersByStatus(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()
	_, err := st.Tasks().Create(ctx, domain.Task{ID: "t1", Title: "a", Objective: "x", WorkspaceID: "ws-1", Status: domain.TaskPending})
	require.NoError(t, err)
	_, err = st.Tasks().Create(ctx, domain.Task{ID: "t2", Title: "b", Objective: "y", WorkspaceID: "ws-1", Status: domain.TaskCompleted})
	require.NoError(t, err)

	res := e.ListTasks(ctx, ListTasksInput{WorkspaceID: "ws-1", Filters: store.TaskFilter{Status: domain.TaskCompleted}})
	require.True(t, res.Success)
	tasks := res.Data.([]domain.Task)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t2", tasks[0].ID)
}

func TestSetNoteContentConvertsTaskBlocksOnSpecNote(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()
	require.NoError(t, st.Notes().Upsert(ctx, domain.Note{ID: domain.SpecNoteID, WorkspaceID: "ws-1", Title: "Spec"}))

	content := `intro text

@@@task
# Build the widget
## Objective
Ship a working widget end to end.
## Scope
Backend only, no UI.
## Acceptance Criteria
- widget compiles
- widget has tests
## Verification Commands
- go build ./...
- go test ./...
@@@

trailing text
`
	res := e.SetNoteContent(ctx, SetNoteContentInput{WorkspaceID: "ws-1", NoteID: domain.SpecNoteID, Content: content})
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	taskIDs := data["taskIds"].([]string)
	require.Len(t, taskIDs, 1)

	task, err := st.Tasks().Get(ctx, taskIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Build the widget", task.Title)
	assert.Contains(t, task.Objective, "Ship a working widget")
	assert.Contains(t, task.Scope, "Backend only")
	assert.Equal(t, []string{"widget compiles", "widget has tests"}, task.AcceptanceCriteria)
	assert.Equal(t, []string{"go build ./...", "go test ./..."}, task.VerificationCommands)
}

func TestSetNoteContentConvertsBulletedObjective(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()
	require.NoError(t, st.Notes().Upsert(ctx, domain.Note{ID: domain.SpecNoteID, WorkspaceID: "ws-1", Title: "Spec"}))

	content := "@@@task\n# T1\n## Objective\n- do X\n@@@"
	res := e.SetNoteContent(ctx, SetNoteContentInput{WorkspaceID: "ws-1", NoteID: domain.SpecNoteID, Content: content})
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	taskIDs := data["taskIds"].([]string)
	require.Len(t, taskIDs, 1)

	task, err := st.Tasks().Get(ctx, taskIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "do X", task.Objective)
}

func TestSetNoteContentSkipsConversionOnNonSpecNote(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()
	require.NoError(t, st.Notes().Upsert(ctx, domain.Note{ID: "general-1", WorkspaceID: "ws-1"}))

	res := e.SetNoteContent(ctx, SetNoteContentInput{
		WorkspaceID: "ws-1", NoteID: "general-1",
		Content: "@@@task\n# should not convert\n@@@\n",
	})
	require.True(t, res.Success)

	tasks, err := st.Tasks().ListByWorkspace(ctx, "ws-1", store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDelegateTaskToAgentForwardsToDelegator(t *testing.T) {
	e, _, d := newTestEndpoint(t)
	d.result = orchestrator.DelegateResult{AgentID: "child-1", SessionID: "sess-1", Specialist: "crafter", Provider: "jsonrpc", WaitMode: domain.WaitImmediate}

	res := e.DelegateTaskToAgent(context.Background(), DelegateTaskToAgentInput{
		TaskID: "task-1", Specialist: "CRAFTER", CallerAgentID: "coordinator-1", WorkspaceID: "ws-1",
	})
	require.True(t, res.Success)
	got := res.Data.(orchestrator.DelegateResult)
	assert.Equal(t, "child-1", got.AgentID)
	assert.Equal(t, "task-1", d.delegate.TaskID)
	assert.Equal(t, "CRAFTER", d.delegate.Specialist)
}

func TestDelegateTaskToAgentRequiresFields(t *testing.T) {
	e, _, _ := newTestEndpoint(t)
	res := e.DelegateTaskToAgent(context.Background(), DelegateTaskToAgentInput{})
	assert.False(t, res.Success)
}

func TestDelegateTaskToAgentPropagatesError(t *testing.T) {
	e, _, d := newTestEndpoint(t)
	d.err = errors.New("depth exceeded")

	res := e.DelegateTaskToAgent(context.Background(), DelegateTaskToAgentInput{
		TaskID: "task-1", Specialist: "CRAFTER", CallerAgentID: "coordinator-1", WorkspaceID: "ws-1",
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "depth exceeded")
}

func TestReportToParentSuccessMarksTaskCompleted(t *testing.T) {
	e, st, d := newTestEndpoint(t)
	ctx := context.Background()
	require.NoError(t, st.Agents().Create(ctx, domain.Agent{ID: "child-1", Role: domain.RoleCrafter, WorkspaceID: "ws-1", Status: domain.AgentActive}))
	task, err := st.Tasks().Create(ctx, domain.Task{ID: "task-1", Title: "t", Objective: "o", WorkspaceID: "ws-1", Status: domain.TaskInProgress, AssignedTo: "child-1"})
	require.NoError(t, err)

	res := e.ReportToParentTool(ctx, ReportToParentInput{
		AgentID: "child-1",
		Report:  ReportDetail{TaskID: task.ID, Summary: "all done", VerificationResults: "tests pass", Success: true},
	})
	require.True(t, res.Success)

	updatedTask, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, updatedTask.Status)
	assert.Equal(t, domain.VerdictApproved, updatedTask.VerificationVerdict)
	assert.Equal(t, "all done", updatedTask.CompletionSummary)

	updatedAgent, err := st.Agents().Get(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentCompleted, updatedAgent.Status)

	assert.Equal(t, []string{"child-1"}, d.reported)
}

func TestReportToParentFailureMarksNeedsFix(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()
	require.NoError(t, st.Agents().Create(ctx, domain.Agent{ID: "child-1", Role: domain.RoleCrafter, WorkspaceID: "ws-1", Status: domain.AgentActive}))
	task, err := st.Tasks().Create(ctx, domain.Task{ID: "task-1", Title: "t", Objective: "o", WorkspaceID: "ws-1", Status: domain.TaskInProgress, AssignedTo: "child-1"})
	require.NoError(t, err)

	res := e.ReportToParentTool(ctx, ReportToParentInput{
		AgentID: "child-1",
		Report:  ReportDetail{TaskID: task.ID, Summary: "blocked on missing creds", Success: false},
	})
	require.True(t, res.Success)

	updatedTask, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskNeedsFix, updatedTask.Status)
	assert.Equal(t, domain.VerdictNotApproved, updatedTask.VerificationVerdict)

	updatedAgent, err := st.Agents().Get(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentError, updatedAgent.Status)
}

func TestReportToParentRequiresFields(t *testing.T) {
	e, _, _ := newTestEndpoint(t)
	res := e.ReportToParentTool(context.Background(), ReportToParentInput{})
	assert.False(t, res.Success)
}

func TestSendMessageToAgentAppendsTranscript(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()
	require.NoError(t, st.Agents().Create(ctx, domain.Agent{ID: "agent-1", WorkspaceID: "ws-1", Status: domain.AgentActive}))

	res := e.SendMessageToAgent(ctx, SendMessageToAgentInput{AgentID: "agent-1", Content: "please continue"})
	require.True(t, res.Success)

	msgs, err := st.Messages().ListByAgent(ctx, "agent-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageUser, msgs[0].Role)
	assert.Equal(t, "please continue", msgs[0].Content)
}

func TestSetAgentNameRenames(t *testing.T) {
	e, st, _ := newTestEndpoint(t)
	ctx := context.Background()
	require.NoError(t, st.Agents().Create(ctx, domain.Agent{ID: "agent-1", Name: "old", WorkspaceID: "ws-1", Status: domain.AgentActive}))

	res := e.SetAgentName(ctx, SetAgentNameInput{AgentID: "agent-1", Name: "new-name"})
	require.True(t, res.Success)

	updated, err := st.Agents().Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "new-name", updated.Name)
}
