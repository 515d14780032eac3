package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/domain"
)

// DelegateRequest is delegateTaskWithSpawn's input (spec.md §4.4).
type DelegateRequest struct {
	TaskID                 string
	CallerAgentID          string
	CallerSessionID         string
	WorkspaceID             string
	Specialist              string
	Provider                string
	Cwd                     string
	AdditionalInstructions  string
	WaitMode                domain.WaitMode
}

// DelegateResult is delegateTaskWithSpawn's return value.
type DelegateResult struct {
	AgentID    string
	SessionID  string
	Specialist string
	Provider   string
	WaitMode   domain.WaitMode
}

// DelegateTaskWithSpawn is the Orchestrator's public entry point, invoked by
// the Tool Endpoint's delegate_task_to_agent tool. It returns to the caller
// before the child's prompt completes: step 10 dispatches Prompt
// asynchronously and attaches completion/error handlers rather than
// awaiting it, so a coordinator tool call never blocks on its children
// (spec.md §5 "non-blocking delegation").
func (o *Orchestrator) DelegateTaskWithSpawn(ctx context.Context, req DelegateRequest) (DelegateResult, error) {
	// 1. Depth guard.
	caller, err := o.store.Agents().Get(ctx, req.CallerAgentID)
	if err != nil {
		return DelegateResult{}, apierr.Wrap(apierr.KindSpawnFailed, "look up caller agent", err)
	}
	callerDepth := delegationDepth(caller)
	if callerDepth >= MaxDelegationDepth {
		return DelegateResult{}, apierr.Newf(apierr.KindDelegationDepthExceeded,
			"Cannot create sub-agent: maximum delegation depth (%d) reached. You are at depth %d. Please complete this task directly instead of delegating further.", MaxDelegationDepth, callerDepth)
	}

	// 2. Specialist resolution.
	specialist, err := o.specialists.Resolve(ctx, req.Specialist)
	if err != nil {
		return DelegateResult{}, apierr.Newf(apierr.KindUnknownSpecialist, "unknown specialist %q", req.Specialist)
	}

	// 3. Task lookup.
	task, err := o.store.Tasks().Get(ctx, req.TaskID)
	if err != nil {
		return DelegateResult{}, apierr.Wrap(apierr.KindTaskNotFound, TaskLookupHint(req.TaskID), err)
	}

	// 4. Provider defaulting.
	provider := req.Provider
	if provider == "" {
		provider = DefaultProviders[specialist.Role]
	}
	cwd := req.Cwd
	if cwd == "" {
		cwd = o.defaultCwd
	}

	// 5. Child agent creation.
	now := time.Now()
	childID := newSessionID()
	child := domain.Agent{
		ID:          childID,
		Name:        specialist.Name,
		Role:        specialist.Role,
		ModelTier:   specialist.DefaultModelTier,
		WorkspaceID: req.WorkspaceID,
		ParentID:    req.CallerAgentID,
		Status:      domain.AgentPending,
		Metadata: map[string]string{
			domain.MetaDelegationDepth: strconv.Itoa(callerDepth + 1),
			domain.MetaCreatedByAgent:  req.CallerAgentID,
			domain.MetaSpecialist:      specialist.ID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.Agents().Create(ctx, child); err != nil {
		return DelegateResult{}, apierr.Wrap(apierr.KindSpawnFailed, "persist child agent", err)
	}

	// 6. Prompt build.
	initialPrompt := composeInitialPrompt(specialist, task, req.AdditionalInstructions)

	// 7. Task assignment.
	task.AssignedTo = childID
	task.Status = domain.TaskInProgress
	if _, err := o.store.Tasks().AtomicUpdate(ctx, task.ID, task.Version, func(t *domain.Task) {
		t.AssignedTo = childID
		t.Status = domain.TaskInProgress
	}); err != nil {
		o.failSpawn(ctx, childID, task.ID)
		return DelegateResult{}, apierr.Wrap(apierr.KindSpawnFailed, "assign task to child", err)
	}

	// 8. Session spawn.
	childSessionID := newSessionID()
	providerSessionID, err := o.sessions.CreateSession(ctx, childSessionID, provider, req.WorkspaceID, cwd,
		func(n adapter.Notification) { o.onChildUpdate(childID, childSessionID, n) }, adapter.SessionOptions{})
	if err != nil {
		o.failSpawn(ctx, childID, task.ID)
		return DelegateResult{}, apierr.Wrap(apierr.KindSpawnFailed, "spawn child session", err)
	}
	_ = providerSessionID

	// 9. Register record.
	record := &domain.ChildAgentRecord{
		AgentID:         childID,
		SessionID:       childSessionID,
		ParentAgentID:   req.CallerAgentID,
		ParentSessionID: req.CallerSessionID,
		TaskID:          task.ID,
		Role:            specialist.Role,
		Provider:        provider,
	}
	o.mu.Lock()
	o.children[childID] = record
	o.mu.Unlock()

	child.Status = domain.AgentActive
	child.UpdatedAt = time.Now()
	_ = o.store.Agents().Update(ctx, child)

	o.startFileWatcher(childID, cwd)

	// 10. Prompt send — fire-and-forget, completion/error handled async.
	go func() {
		promptCtx := context.Background()
		if err := o.sessions.Prompt(promptCtx, childSessionID, initialPrompt); err != nil {
			o.handleChildError(promptCtx, childID, err)
			return
		}
		o.autoReportIfNeeded(promptCtx, childID)
	}()

	// 11. Wait-mode bookkeeping.
	waitMode := req.WaitMode
	if waitMode == "" {
		waitMode = domain.WaitImmediate
	}
	if waitMode == domain.WaitAfterAll {
		o.mu.Lock()
		g, ok := o.groups[req.CallerAgentID]
		if !ok {
			g = &domain.DelegationGroup{
				GroupID:           newSessionID(),
				ParentAgentID:     req.CallerAgentID,
				ParentSessionID:   req.CallerSessionID,
				CompletedAgentIDs: make(map[string]bool),
			}
			o.groups[req.CallerAgentID] = g
		}
		g.ChildAgentIDs = append(g.ChildAgentIDs, childID)
		o.mu.Unlock()
	}

	// 12. Events.
	if o.bridge != nil {
		o.bridge.Publish(context.Background(), req.CallerSessionID, taskAssignedEvent(childID, task.ID))
	}

	// 13. Return.
	return DelegateResult{
		AgentID:    childID,
		SessionID:  childSessionID,
		Specialist: specialist.ID,
		Provider:   provider,
		WaitMode:   waitMode,
	}, nil
}

func (o *Orchestrator) failSpawn(ctx context.Context, childID, taskID string) {
	if agent, err := o.store.Agents().Get(ctx, childID); err == nil {
		agent.Status = domain.AgentError
		agent.UpdatedAt = time.Now()
		_ = o.store.Agents().Update(ctx, agent)
	}
	if task, err := o.store.Tasks().Get(ctx, taskID); err == nil {
		_, _ = o.store.Tasks().AtomicUpdate(ctx, task.ID, task.Version, func(t *domain.Task) {
			t.Status = domain.TaskBlocked
		})
	}
}

func composeInitialPrompt(specialist domain.Specialist, task domain.Task, additional string) string {
	var b strings.Builder
	b.WriteString(specialist.SystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(specialist.RoleReminder)
	b.WriteString(fmt.Sprintf("\n\n## Task: %s\n\n%s\n", task.Title, task.Objective))
	if task.Scope != "" {
		fmt.Fprintf(&b, "\n### Scope\n%s\n", task.Scope)
	}
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("\n### Definition of done\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(task.VerificationCommands) > 0 {
		b.WriteString("\n### Verification\n")
		for _, c := range task.VerificationCommands {
			fmt.Fprintf(&b, "- `%s`\n", c)
		}
	}
	if additional != "" {
		fmt.Fprintf(&b, "\n### Additional instructions\n%s\n", additional)
	}
	if task.Scope != "" {
		fmt.Fprintf(&b, "\nSCOPE: %s\n", task.Scope)
	}
	return b.String()
}
