package background

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/bridge"
	"github.com/fleetctl/core/internal/domain"
)

// defaultProviderByRole mirrors orchestrator.DefaultProviders: a tiny,
// independently-owned table (not imported from internal/orchestrator, to
// avoid coupling the Background Task Engine to the Delegation
// Orchestrator's package for a two-entry lookup).
var defaultProviderByRole = map[domain.Role]string{
	domain.RoleCrafter: "jsonrpc",
	domain.RoleGate:    "jsonrpc",
}

// DrainReady reserves and runs every currently-ready task in priority then
// creation order (the ordering store.BackgroundTasks().ListReady already
// guarantees). Intended to be called on a ticker from cmd/server;
// concurrent engine processes race on ReservationLock so only one instance
// actually runs a given task.
func (e *Engine) DrainReady(ctx context.Context, workspaceID string) error {
	ready, err := e.store.BackgroundTasks().ListReady(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("list ready background tasks: %w", err)
	}
	for _, t := range ready {
		acquired, err := e.lock.TryAcquire(ctx, t.ID, e.workerID, e.orphanThreshold)
		if err != nil {
			e.log.Warn(ctx, "background task reservation lock error", "taskId", t.ID, "error", err.Error())
			continue
		}
		if !acquired {
			continue
		}
		go e.runReserved(context.Background(), t)
	}
	return nil
}

func (e *Engine) runReserved(ctx context.Context, t domain.BackgroundTask) {
	defer func() {
		if err := e.lock.Release(ctx, t.ID, e.workerID); err != nil {
			e.log.Warn(ctx, "background task reservation release error", "taskId", t.ID, "error", err.Error())
		}
	}()

	t.Status = domain.BackgroundRunning
	t.Attempts++
	t.StartedAt = time.Now()
	t.UpdatedAt = t.StartedAt
	if err := e.updateTask(ctx, t); err != nil {
		e.log.Error(ctx, "mark background task running failed", "taskId", t.ID, "error", err.Error())
		return
	}

	specialist, err := e.resolveSpecialist(ctx, t)
	if err != nil {
		e.fail(ctx, t, fmt.Errorf("resolve specialist: %w", err))
		return
	}

	sessionID := t.ID
	var unsubscribe func()
	if e.bridge != nil {
		unsubscribe = e.bridge.Subscribe(sessionID, func(evt bridge.Event) { e.applyProgress(t.ID, evt) })
		defer unsubscribe()
		defer e.bridge.Forget(sessionID)
	}
	handler := func(n adapter.Notification) {
		if e.bridge != nil {
			e.bridge.HandleNotification(context.Background(), sessionID, n)
		}
	}

	provider := t.Provider
	if provider == "" {
		provider = defaultProviderByRole[specialist.Role]
	}
	if provider == "" {
		provider = "jsonrpc"
	}
	cwd := t.Cwd
	if cwd == "" {
		cwd = e.defaultCwd
	}

	providerSessionID, err := e.sessions.CreateSession(ctx, sessionID, provider, t.WorkspaceID, cwd, handler, adapter.SessionOptions{})
	if err != nil {
		e.fail(ctx, t, fmt.Errorf("spawn session: %w", err))
		return
	}
	t.ResultSessionID = providerSessionID
	t.UpdatedAt = time.Now()
	if err := e.updateTask(ctx, t); err != nil {
		e.log.Error(ctx, "record background task session id failed", "taskId", t.ID, "error", err.Error())
	}

	if err := e.sessions.Prompt(ctx, sessionID, t.Prompt); err != nil {
		e.fail(ctx, t, fmt.Errorf("prompt: %w", err))
		return
	}
	e.complete(ctx, t)
}

func (e *Engine) resolveSpecialist(ctx context.Context, t domain.BackgroundTask) (domain.Specialist, error) {
	if e.specialists == nil {
		return domain.Specialist{}, nil
	}
	name := t.Specialist
	if name == "" {
		name = "CRAFTER"
	}
	return e.specialists.Resolve(ctx, name)
}

// applyProgress folds a normalized Bridge event into the task's progress
// fields (spec §4.6 "progress updates ... are written from bridge events").
func (e *Engine) applyProgress(taskID string, evt bridge.Event) {
	ctx := context.Background()
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.store.BackgroundTasks().Get(ctx, taskID)
	if err != nil {
		return
	}
	t.LastActivity = time.Now()
	switch evt.Kind {
	case bridge.KindToolCallStarted:
		t.ToolCallCount++
		t.CurrentActivity = "running tool " + evt.ToolName
	case bridge.KindThought:
		t.CurrentActivity = "thinking"
	case bridge.KindOutputChunk:
		t.CurrentActivity = "writing output"
		t.TaskOutput += evt.Text
	case bridge.KindToolCallEnded:
		t.CurrentActivity = "tool " + evt.ToolName + " finished"
	}
	t.UpdatedAt = t.LastActivity
	if err := e.store.BackgroundTasks().Update(ctx, t); err != nil {
		e.log.Warn(ctx, "background task progress update failed", "taskId", taskID, "error", err.Error())
	}
}

func (e *Engine) complete(ctx context.Context, t domain.BackgroundTask) {
	t.Status = domain.BackgroundCompleted
	t.CompletedAt = time.Now()
	t.UpdatedAt = t.CompletedAt
	if err := e.updateTask(ctx, t); err != nil {
		e.log.Error(ctx, "mark background task completed failed", "taskId", t.ID, "error", err.Error())
	}
}

func (e *Engine) fail(ctx context.Context, t domain.BackgroundTask, cause error) {
	t.ErrorMessage = cause.Error()
	t.UpdatedAt = time.Now()
	if t.Attempts >= t.MaxAttempts {
		t.Status = domain.BackgroundFailed
		t.CompletedAt = t.UpdatedAt
	} else {
		t.Status = domain.BackgroundPending
	}
	if err := e.updateTask(ctx, t); err != nil {
		e.log.Error(ctx, "mark background task failed failed", "taskId", t.ID, "error", err.Error())
	}
}

// ReclaimOrphans transitions RUNNING tasks with no ResultSessionID that
// have exceeded the orphan threshold back to PENDING, or to FAILED once
// MaxAttempts is exhausted (spec §4.6).
func (e *Engine) ReclaimOrphans(ctx context.Context, workspaceID string) error {
	running, err := e.store.BackgroundTasks().ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running background tasks: %w", err)
	}
	now := time.Now()
	for _, t := range running {
		if workspaceID != "" && t.WorkspaceID != workspaceID {
			continue
		}
		if !t.Orphaned(now, e.orphanThreshold) {
			continue
		}
		if t.Attempts >= t.MaxAttempts {
			t.Status = domain.BackgroundFailed
			t.ErrorMessage = "reclaimed: orphaned beyond max attempts"
			t.CompletedAt = now
		} else {
			t.Status = domain.BackgroundPending
		}
		t.UpdatedAt = now
		if err := e.updateTask(ctx, t); err != nil {
			e.log.Error(ctx, "reclaim orphaned background task failed", "taskId", t.ID, "error", err.Error())
		}
	}
	return nil
}

// updateTask serializes writes to a single BackgroundTask row against
// concurrent progress updates from applyProgress, mirroring the single
// orchestrator-scoped mutex the Delegation Orchestrator and Bridge use for
// the same reason (DESIGN.md "Concurrency & Resource Model").
func (e *Engine) updateTask(ctx context.Context, t domain.BackgroundTask) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.BackgroundTasks().Update(ctx, t)
}
