package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type backgroundTaskStore Store

func (s *backgroundTaskStore) Create(ctx context.Context, t domain.BackgroundTask) error {
	deps, err := marshal(t.DependsOnTaskIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO background_tasks (id, title, prompt, agent_id, workspace_id, status, triggered_by,
			trigger_source, priority, result_session_id, error_message, attempts, max_attempts,
			last_activity, current_activity, tool_call_count, input_tokens, output_tokens,
			workflow_run_id, workflow_step_name, depends_on_task_ids, task_output, created_at,
			started_at, completed_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
		t.ID, t.Title, t.Prompt, t.AgentID, t.WorkspaceID, t.Status, t.TriggeredBy, t.TriggerSource,
		t.Priority, t.ResultSessionID, t.ErrorMessage, t.Attempts, t.MaxAttempts, nullTime(t.LastActivity),
		t.CurrentActivity, t.ToolCallCount, t.InputTokens, t.OutputTokens, t.WorkflowRunID,
		t.WorkflowStepName, deps, t.TaskOutput, t.CreatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt), t.UpdatedAt)
	return mapErr(err, "create background task")
}

func (s *backgroundTaskStore) Get(ctx context.Context, id string) (domain.BackgroundTask, error) {
	row := s.pool.QueryRow(ctx, backgroundTaskSelect+` WHERE id = $1`, id)
	return scanBackgroundTask(row)
}

func (s *backgroundTaskStore) Update(ctx context.Context, t domain.BackgroundTask) error {
	deps, err := marshal(t.DependsOnTaskIDs)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE background_tasks SET title=$2, prompt=$3, agent_id=$4, status=$5, triggered_by=$6,
			trigger_source=$7, priority=$8, result_session_id=$9, error_message=$10, attempts=$11,
			max_attempts=$12, last_activity=$13, current_activity=$14, tool_call_count=$15,
			input_tokens=$16, output_tokens=$17, workflow_run_id=$18, workflow_step_name=$19,
			depends_on_task_ids=$20, task_output=$21, started_at=$22, completed_at=$23, updated_at=$24
		WHERE id = $1`,
		t.ID, t.Title, t.Prompt, t.AgentID, t.Status, t.TriggeredBy, t.TriggerSource, t.Priority,
		t.ResultSessionID, t.ErrorMessage, t.Attempts, t.MaxAttempts, nullTime(t.LastActivity),
		t.CurrentActivity, t.ToolCallCount, t.InputTokens, t.OutputTokens, t.WorkflowRunID,
		t.WorkflowStepName, deps, t.TaskOutput, nullTime(t.StartedAt), nullTime(t.CompletedAt), t.UpdatedAt)
	if err != nil {
		return mapErr(err, "update background task")
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "update background task")
	}
	return nil
}

// ListReady evaluates dependency readiness in Go rather than SQL, matching
// memstore's Ready semantics exactly.
func (s *backgroundTaskStore) ListReady(ctx context.Context, workspaceID string) ([]domain.BackgroundTask, error) {
	all, err := s.query(ctx, `WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return nil, err
	}
	statusByID := make(map[string]domain.BackgroundTaskStatus, len(all))
	for _, t := range all {
		statusByID[t.ID] = t.Status
	}
	var out []domain.BackgroundTask
	for _, t := range all {
		if t.Ready(statusByID) {
			out = append(out, t)
		}
	}
	sortReady(out)
	return out, nil
}

func (s *backgroundTaskStore) ListRunning(ctx context.Context) ([]domain.BackgroundTask, error) {
	return s.query(ctx, `WHERE status = $1`, domain.BackgroundRunning)
}

func (s *backgroundTaskStore) query(ctx context.Context, where string, arg any) ([]domain.BackgroundTask, error) {
	rows, err := s.pool.Query(ctx, backgroundTaskSelect+" "+where, arg)
	if err != nil {
		return nil, mapErr(err, "list background tasks")
	}
	defer rows.Close()
	var out []domain.BackgroundTask
	for rows.Next() {
		t, err := scanBackgroundTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, mapErr(rows.Err(), "list background tasks")
}

func sortReady(tasks []domain.BackgroundTask) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0; j-- {
			a, b := tasks[j-1], tasks[j]
			less := b.Priority < a.Priority || (b.Priority == a.Priority && b.CreatedAt.Before(a.CreatedAt))
			if !less {
				break
			}
			tasks[j-1], tasks[j] = tasks[j], tasks[j-1]
		}
	}
}

const backgroundTaskSelect = `
	SELECT id, title, prompt, agent_id, workspace_id, status, triggered_by, trigger_source, priority,
		result_session_id, error_message, attempts, max_attempts, last_activity, current_activity,
		tool_call_count, input_tokens, output_tokens, workflow_run_id, workflow_step_name,
		depends_on_task_ids, task_output, created_at, started_at, completed_at, updated_at
	FROM background_tasks`

func scanBackgroundTask(row pgx.Row) (domain.BackgroundTask, error) {
	var t domain.BackgroundTask
	var deps []byte
	var lastActivity, startedAt, completedAt *time.Time
	if err := row.Scan(&t.ID, &t.Title, &t.Prompt, &t.AgentID, &t.WorkspaceID, &t.Status, &t.TriggeredBy,
		&t.TriggerSource, &t.Priority, &t.ResultSessionID, &t.ErrorMessage, &t.Attempts, &t.MaxAttempts,
		&lastActivity, &t.CurrentActivity, &t.ToolCallCount, &t.InputTokens, &t.OutputTokens,
		&t.WorkflowRunID, &t.WorkflowStepName, &deps, &t.TaskOutput, &t.CreatedAt, &startedAt,
		&completedAt, &t.UpdatedAt); err != nil {
		return domain.BackgroundTask{}, mapErr(err, "scan background task")
	}
	if lastActivity != nil {
		t.LastActivity = *lastActivity
	}
	if startedAt != nil {
		t.StartedAt = *startedAt
	}
	if completedAt != nil {
		t.CompletedAt = *completedAt
	}
	if err := unmarshalJSON(deps, &t.DependsOnTaskIDs); err != nil {
		return domain.BackgroundTask{}, mapErr(err, "decode depends_on_task_ids")
	}
	return t, nil
}
