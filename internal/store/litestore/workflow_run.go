package litestore

import (
	"context"
	"time"

	"github.com/fleetctl/core/internal/domain"
)

type workflowRunStore Store

func (s *workflowRunStore) Create(ctx context.Context, r domain.WorkflowRun) error {
	outputs, err := marshal(r.StepOutputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, workflow_name, workflow_version, workspace_id, status,
			trigger_source, trigger_payload, current_step_name, step_outputs, total_steps, completed_steps,
			started_at, completed_at, error_message)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.WorkflowID, r.WorkflowName, r.WorkflowVersion, r.WorkspaceID, r.Status, r.TriggerSource,
		r.TriggerPayload, r.CurrentStepName, outputs, r.TotalSteps, r.CompletedSteps,
		nullTime(r.StartedAt), nullTime(r.CompletedAt), r.ErrorMessage)
	return mapErr(err, "create workflow run")
}

func (s *workflowRunStore) Get(ctx context.Context, id string) (domain.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx, workflowRunSelect+` WHERE id = ?`, id)
	return scanWorkflowRun(row)
}

func (s *workflowRunStore) Update(ctx context.Context, r domain.WorkflowRun) error {
	outputs, err := marshal(r.StepOutputs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status=?, current_step_name=?, step_outputs=?, total_steps=?,
			completed_steps=?, started_at=?, completed_at=?, error_message=?
		WHERE id = ?`,
		r.Status, r.CurrentStepName, outputs, r.TotalSteps, r.CompletedSteps,
		nullTime(r.StartedAt), nullTime(r.CompletedAt), r.ErrorMessage, r.ID)
	return checkAffected(res, err, "update workflow run")
}

const workflowRunSelect = `
	SELECT id, workflow_id, workflow_name, workflow_version, workspace_id, status, trigger_source,
		trigger_payload, current_step_name, step_outputs, total_steps, completed_steps, started_at,
		completed_at, error_message
	FROM workflow_runs`

func scanWorkflowRun(row scanner) (domain.WorkflowRun, error) {
	var r domain.WorkflowRun
	var outputs string
	var startedAt, completedAt *time.Time
	if err := row.Scan(&r.ID, &r.WorkflowID, &r.WorkflowName, &r.WorkflowVersion, &r.WorkspaceID, &r.Status,
		&r.TriggerSource, &r.TriggerPayload, &r.CurrentStepName, &outputs, &r.TotalSteps, &r.CompletedSteps,
		&startedAt, &completedAt, &r.ErrorMessage); err != nil {
		return domain.WorkflowRun{}, mapErr(err, "scan workflow run")
	}
	if startedAt != nil {
		r.StartedAt = *startedAt
	}
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}
	if err := unmarshalJSON(outputs, &r.StepOutputs); err != nil {
		return domain.WorkflowRun{}, mapErr(err, "decode step outputs")
	}
	return r, nil
}
