package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

// CreateTaskInput is create_task's payload (spec §4.5).
type CreateTaskInput struct {
	Title                string   `json:"title"`
	Objective            string   `json:"objective"`
	Scope                string   `json:"scope,omitempty"`
	AcceptanceCriteria   []string `json:"acceptanceCriteria,omitempty"`
	VerificationCommands []string `json:"verificationCommands,omitempty"`
	WorkspaceID          string   `json:"workspaceId"`
	ParentTaskID         string   `json:"parentTaskId,omitempty"`
	ParallelGroup        string   `json:"parallelGroup,omitempty"`
	Dependencies         []string `json:"dependencies,omitempty"`
}

// CreateTask persists a new, unassigned task (spec §4.5 create_task). A
// parentTaskId is recorded as a dependency rather than a dedicated field:
// domain.Task has no parent-task relationship of its own, only the
// dependency DAG the Background Task Engine schedules against.
func (e *Endpoint) CreateTask(ctx context.Context, in CreateTaskInput) Result {
	if in.Title == "" || in.Objective == "" || in.WorkspaceID == "" {
		return failMsg("title, objective, and workspaceId are required")
	}
	deps := in.Dependencies
	if in.ParentTaskID != "" {
		deps = append(append([]string{}, deps...), in.ParentTaskID)
	}
	task := domain.Task{
		ID:                   uuid.NewString(),
		Title:                in.Title,
		Objective:            in.Objective,
		Scope:                in.Scope,
		AcceptanceCriteria:   in.AcceptanceCriteria,
		VerificationCommands: in.VerificationCommands,
		Status:               domain.TaskPending,
		Dependencies:         deps,
		ParallelGroup:        in.ParallelGroup,
		WorkspaceID:          in.WorkspaceID,
	}
	created, err := e.store.Tasks().Create(ctx, task)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]string{"taskId": created.ID})
}

// ListTasksInput is list_tasks's payload.
type ListTasksInput struct {
	WorkspaceID string           `json:"workspaceId"`
	Filters     store.TaskFilter `json:"filters,omitempty"`
}

// ListTasks returns every task in a workspace matching Filters.
func (e *Endpoint) ListTasks(ctx context.Context, in ListTasksInput) Result {
	tasks, err := e.store.Tasks().ListByWorkspace(ctx, in.WorkspaceID, in.Filters)
	if err != nil {
		return fail(err)
	}
	return ok(tasks)
}
