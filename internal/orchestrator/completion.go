package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetctl/core/internal/domain"
)

// handleChildCompletion tears down a completed child's orchestrator-owned
// state and wakes its parent, either immediately or once the rest of its
// DelegationGroup has also completed (spec §4.4 "Completion handling").
func (o *Orchestrator) handleChildCompletion(ctx context.Context, childAgentID string, rec *domain.ChildAgentRecord, report Report) {
	o.stopFileWatcher(childAgentID)

	o.mu.Lock()
	group, inGroup := o.groups[rec.ParentAgentID]
	inGroup = inGroup && containsString(group.ChildAgentIDs, childAgentID)
	if inGroup {
		group.CompletedAgentIDs[childAgentID] = true
	}
	done := inGroup && group.Done()
	if done {
		delete(o.groups, rec.ParentAgentID)
	}
	o.mu.Unlock()

	if inGroup {
		// Keep every group member's record alive until the whole group
		// completes: wakeGroup needs each child's taskId to summarize.
		if !done {
			return
		}
		o.wakeGroup(ctx, rec.ParentAgentID, rec.ParentSessionID, group)
		for _, childID := range group.ChildAgentIDs {
			o.forgetChild(childID)
		}
		return
	}

	o.wakeSingle(ctx, rec, report)
	o.forgetChild(childAgentID)
}

// forgetChild releases a child's orchestrator-owned bookkeeping once it has
// been fully woken and will never be referenced again.
func (o *Orchestrator) forgetChild(childAgentID string) {
	o.mu.Lock()
	rec, ok := o.children[childAgentID]
	delete(o.children, childAgentID)
	delete(o.reported, childAgentID)
	o.mu.Unlock()
	if ok && o.bridge != nil {
		o.bridge.Forget(rec.SessionID)
	}
}

// handleChildError transitions a failed child and its task, then wakes the
// parent through the same completion pathway (spec §4.4 "Error semantics").
func (o *Orchestrator) handleChildError(ctx context.Context, childAgentID string, cause error) {
	o.mu.Lock()
	rec, ok := o.children[childAgentID]
	o.mu.Unlock()
	if !ok {
		return
	}

	message := cause.Error()
	if agent, err := o.store.Agents().Get(ctx, childAgentID); err == nil {
		agent.Status = domain.AgentError
		_ = o.store.Agents().Update(ctx, agent)
	}
	if task, err := o.store.Tasks().Get(ctx, rec.TaskID); err == nil {
		_, _ = o.store.Tasks().AtomicUpdate(ctx, task.ID, task.Version, func(t *domain.Task) {
			t.Status = domain.TaskNeedsFix
			t.CompletionSummary = message
		})
	}
	if o.bridge != nil {
		o.bridge.Publish(ctx, rec.ParentSessionID, agentErrorEvent(childAgentID, rec.TaskID, message))
	}

	o.handleChildCompletion(ctx, childAgentID, rec, Report{TaskID: rec.TaskID, Summary: message, Success: false})
}

func (o *Orchestrator) wakeSingle(ctx context.Context, rec *domain.ChildAgentRecord, report Report) {
	agent, err := o.store.Agents().Get(ctx, rec.AgentID)
	if err != nil {
		o.log.Warn(ctx, "orchestrator: wake single: agent lookup failed", "agent_id", rec.AgentID, "err", err)
		return
	}
	task, err := o.store.Tasks().Get(ctx, rec.TaskID)
	if err != nil {
		o.log.Warn(ctx, "orchestrator: wake single: task lookup failed", "task_id", rec.TaskID, "err", err)
		return
	}
	msg := composeSingleWakeMessage(agent, task)
	o.sendWake(ctx, rec.ParentSessionID, rec.AgentID, rec.TaskID, msg)
}

func (o *Orchestrator) wakeGroup(ctx context.Context, parentAgentID, parentSessionID string, group *domain.DelegationGroup) {
	var b strings.Builder
	fmt.Fprintf(&b, "All %d delegated tasks have completed:\n", len(group.ChildAgentIDs))
	for _, childID := range group.ChildAgentIDs {
		agent, err := o.store.Agents().Get(ctx, childID)
		if err != nil {
			continue
		}
		summary := "(no summary)"
		if rec, ok := o.childRecord(childID); ok {
			if task, err := o.store.Tasks().Get(ctx, rec.TaskID); err == nil {
				if task.CompletionSummary != "" {
					summary = task.CompletionSummary
				}
				fmt.Fprintf(&b, "- %s (%s): %s — %s\n", agent.Name, agent.Role, task.Status, summary)
				continue
			}
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", agent.Name, agent.Role, summary)
	}
	o.sendWake(ctx, parentSessionID, parentAgentID, "", b.String())
}

func (o *Orchestrator) sendWake(ctx context.Context, parentSessionID, childAgentID, taskID, message string) {
	if o.bridge != nil {
		o.bridge.Publish(ctx, parentSessionID, taskCompletionEvent(childAgentID, taskID, message))
	}
	if err := o.sessions.Prompt(ctx, parentSessionID, message); err != nil {
		o.log.Error(ctx, "orchestrator: wake prompt failed", "session_id", parentSessionID, "err", err)
	}
}

func composeSingleWakeMessage(agent domain.Agent, task domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): Task \"%s\" → %s\n", agent.Name, agent.Role, task.Title, task.Status)
	if task.CompletionSummary != "" {
		fmt.Fprintf(&b, "\nSummary: %s\n", task.CompletionSummary)
	}
	if task.VerificationVerdict != "" {
		fmt.Fprintf(&b, "\nVerification verdict: %s\n", task.VerificationVerdict)
	}
	if task.VerificationReport != "" {
		fmt.Fprintf(&b, "\nVerification report:\n%s\n", task.VerificationReport)
	}
	return b.String()
}

func (o *Orchestrator) childRecord(childAgentID string) (*domain.ChildAgentRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.children[childAgentID]
	return rec, ok
}

// Cleanup walks every child record whose parent or own session matches
// sessionID, kills those child sessions, and releases their orchestrator
// state (spec §4.4 "Cleanup"). Called when a session is killed, so
// abandoned children don't keep running.
func (o *Orchestrator) Cleanup(ctx context.Context, sessionID string) {
	o.mu.Lock()
	var toKill []string
	for agentID, rec := range o.children {
		if rec.ParentSessionID == sessionID || rec.SessionID == sessionID {
			toKill = append(toKill, agentID)
		}
	}
	o.mu.Unlock()

	for _, agentID := range toKill {
		rec, ok := o.childRecord(agentID)
		if !ok {
			continue
		}
		o.stopFileWatcher(agentID)
		_ = o.sessions.KillSession(ctx, rec.SessionID)
		o.forgetChild(agentID)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
