// Package store defines the Persistence Façade: per-entity interfaces with
// identical shape across backends (in-memory, embedded KV, remote SQL), so
// the rest of the control plane depends only on these interfaces. Backends
// live in the memstore, litestore, and pgstore subpackages.
package store

import (
	"context"
	"errors"

	"github.com/fleetctl/core/internal/domain"
)

// ErrNotFound is returned by any Load/Get method when the requested entity
// does not exist. Backends must return this sentinel (or a wrapped form of
// it, so errors.Is still matches) rather than a backend-specific error.
var ErrNotFound = errors.New("not found")

type (
	// Workspaces persists Workspace entities.
	Workspaces interface {
		Create(ctx context.Context, w domain.Workspace) error
		Get(ctx context.Context, id string) (domain.Workspace, error)
		Update(ctx context.Context, w domain.Workspace) error
		// Delete cascades to the workspace's codebases, agents, tasks, notes,
		// and ACP sessions, per the Workspace entity's cascade invariant.
		Delete(ctx context.Context, id string) error
		List(ctx context.Context) ([]domain.Workspace, error)
	}

	// Codebases persists Codebase entities.
	Codebases interface {
		Create(ctx context.Context, c domain.Codebase) error
		Get(ctx context.Context, id string) (domain.Codebase, error)
		ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Codebase, error)
		Delete(ctx context.Context, id string) error
		DeleteByWorkspace(ctx context.Context, workspaceID string) error
	}

	// Agents persists Agent entities.
	Agents interface {
		Create(ctx context.Context, a domain.Agent) error
		Get(ctx context.Context, id string) (domain.Agent, error)
		Update(ctx context.Context, a domain.Agent) error
		ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error)
		ListChildren(ctx context.Context, parentID string) ([]domain.Agent, error)
		DeleteByWorkspace(ctx context.Context, workspaceID string) error
	}

	// Tasks persists Task entities with optimistic-concurrency updates.
	Tasks interface {
		Create(ctx context.Context, t domain.Task) (domain.Task, error)
		Get(ctx context.Context, id string) (domain.Task, error)
		ListByWorkspace(ctx context.Context, workspaceID string, filter TaskFilter) ([]domain.Task, error)
		// AtomicUpdate applies mutate to the stored task iff its current
		// Version equals expectedVersion, then increments Version. Returns
		// apierr.KindVersionConflict-classified error on mismatch.
		AtomicUpdate(ctx context.Context, id string, expectedVersion int, mutate func(*domain.Task)) (domain.Task, error)
		DeleteByWorkspace(ctx context.Context, workspaceID string) error
	}

	// TaskFilter narrows ListByWorkspace results. Zero value matches everything.
	TaskFilter struct {
		Status     domain.TaskStatus
		AssignedTo string
	}

	// Notes persists Note entities, composite-keyed by (workspaceID, id).
	Notes interface {
		Upsert(ctx context.Context, n domain.Note) error
		Get(ctx context.Context, workspaceID, id string) (domain.Note, error)
		ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Note, error)
		DeleteByWorkspace(ctx context.Context, workspaceID string) error
	}

	// Messages persists an agent's append-only transcript.
	Messages interface {
		Append(ctx context.Context, m domain.Message) error
		ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.Message, error)
	}

	// ACPSessions persists the durable representation of Agent Adapter
	// sessions, used for cold-start recovery.
	ACPSessions interface {
		Upsert(ctx context.Context, s domain.ACPSession) error
		Get(ctx context.Context, id string) (domain.ACPSession, error)
		Delete(ctx context.Context, id string) error
	}

	// BackgroundTasks persists the priority+dependency queue.
	BackgroundTasks interface {
		Create(ctx context.Context, t domain.BackgroundTask) error
		Get(ctx context.Context, id string) (domain.BackgroundTask, error)
		Update(ctx context.Context, t domain.BackgroundTask) error
		// ListReady returns PENDING tasks whose dependencies are all
		// COMPLETED, ordered by Priority ascending then CreatedAt ascending.
		ListReady(ctx context.Context, workspaceID string) ([]domain.BackgroundTask, error)
		ListRunning(ctx context.Context) ([]domain.BackgroundTask, error)
	}

	// WorkflowRuns persists workflow DAG executions.
	WorkflowRuns interface {
		Create(ctx context.Context, r domain.WorkflowRun) error
		Get(ctx context.Context, id string) (domain.WorkflowRun, error)
		Update(ctx context.Context, r domain.WorkflowRun) error
	}

	// WebhookConfigs persists webhook trigger configuration.
	WebhookConfigs interface {
		Upsert(ctx context.Context, c domain.WebhookConfig) error
		Get(ctx context.Context, id string) (domain.WebhookConfig, error)
		ListByRepo(ctx context.Context, repo string) ([]domain.WebhookConfig, error)
		ListEnabled(ctx context.Context) ([]domain.WebhookConfig, error)
	}

	// WebhookTriggerLogs persists the audit trail of inbound trigger events.
	WebhookTriggerLogs interface {
		Append(ctx context.Context, l domain.WebhookTriggerLog) error
		ListByConfig(ctx context.Context, configID string, limit int) ([]domain.WebhookTriggerLog, error)
	}

	// Specialists persists user-defined specialist overrides (database
	// tier of the resolution order; file-based tiers live on disk).
	Specialists interface {
		Upsert(ctx context.Context, s domain.Specialist) error
		Get(ctx context.Context, id string) (domain.Specialist, error)
		List(ctx context.Context) ([]domain.Specialist, error)
	}

	// Facade aggregates every entity store a backend provides. Concrete
	// backends (memstore, litestore, pgstore) implement this in full.
	Facade interface {
		Workspaces() Workspaces
		Codebases() Codebases
		Agents() Agents
		Tasks() Tasks
		Notes() Notes
		Messages() Messages
		ACPSessions() ACPSessions
		BackgroundTasks() BackgroundTasks
		WorkflowRuns() WorkflowRuns
		WebhookConfigs() WebhookConfigs
		WebhookTriggerLogs() WebhookTriggerLogs
		Specialists() Specialists
		// Close releases any resources (connections, file handles) held by
		// the backend.
		Close(ctx context.Context) error
	}
)
