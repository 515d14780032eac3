package pgstore

import (
	"time"

	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type workflowRunStore Store

func (s *workflowRunStore) Create(ctx context.Context, r domain.WorkflowRun) error {
	outputs, err := marshal(r.StepOutputs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, workflow_name, workflow_version, workspace_id, status,
			trigger_source, trigger_payload, current_step_name, step_outputs, total_steps, completed_steps,
			started_at, completed_at, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.WorkflowID, r.WorkflowName, r.WorkflowVersion, r.WorkspaceID, r.Status, r.TriggerSource,
		r.TriggerPayload, r.CurrentStepName, outputs, r.TotalSteps, r.CompletedSteps,
		nullTime(r.StartedAt), nullTime(r.CompletedAt), r.ErrorMessage)
	return mapErr(err, "create workflow run")
}

func (s *workflowRunStore) Get(ctx context.Context, id string) (domain.WorkflowRun, error) {
	row := s.pool.QueryRow(ctx, workflowRunSelect+` WHERE id = $1`, id)
	return scanWorkflowRun(row)
}

func (s *workflowRunStore) Update(ctx context.Context, r domain.WorkflowRun) error {
	outputs, err := marshal(r.StepOutputs)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs SET status=$2, current_step_name=$3, step_outputs=$4, total_steps=$5,
			completed_steps=$6, started_at=$7, completed_at=$8, error_message=$9
		WHERE id = $1`,
		r.ID, r.Status, r.CurrentStepName, outputs, r.TotalSteps, r.CompletedSteps,
		nullTime(r.StartedAt), nullTime(r.CompletedAt), r.ErrorMessage)
	if err != nil {
		return mapErr(err, "update workflow run")
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "update workflow run")
	}
	return nil
}

const workflowRunSelect = `
	SELECT id, workflow_id, workflow_name, workflow_version, workspace_id, status, trigger_source,
		trigger_payload, current_step_name, step_outputs, total_steps, completed_steps, started_at,
		completed_at, error_message
	FROM workflow_runs`

func scanWorkflowRun(row pgx.Row) (domain.WorkflowRun, error) {
	var r domain.WorkflowRun
	var outputs []byte
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
