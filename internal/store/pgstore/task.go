package pgstore

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type taskStore Store

func (s *taskStore) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.Version == 0 {
		t.Version = 1
	}
	ac, err := marshal(t.AcceptanceCriteria)
	if err != nil {
		return domain.Task{}, err
	}
	vc, err := marshal(t.VerificationCommands)
	if err != nil {
		return domain.Task{}, err
	}
	deps, err := marshal(t.Dependencies)
	if err != nil {
		return domain.Task{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, workspace_id, title, objective, scope, acceptance_criteria,
			verification_commands, assigned_to, status, dependencies, parallel_group, session_id,
			completion_summary, verification_verdict, verification_report, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.WorkspaceID, t.Title, t.Objective, t.Scope, ac, vc, t.AssignedTo, t.Status, deps,
		t.ParallelGroup, t.SessionID, t.CompletionSummary, t.VerificationVerdict, t.VerificationReport, t.Version)
	if err != nil {
		return domain.Task{}, mapErr(err, "create task")
	}
	return t, nil
}

func (s *taskStore) Get(ctx context.Context, id string) (domain.Task, error) {
	row := s.pool.QueryRow(ctx, taskSelect+` WHERE id = $1`, id)
	return scanTask(row)
}

func (s *taskStore) ListByWorkspace(ctx context.Context, workspaceID string, filter store.TaskFilter) ([]domain.Task, error) {
	sql := taskSelect + ` WHERE workspace_id = $1`
	args := []any{workspaceID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		sql += " AND status = $" + strconv.Itoa(len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		sql += " AND assigned_to = $" + strconv.Itoa(len(args))
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err, "list tasks")
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, mapErr(rows.Err(), "list tasks")
}

// AtomicUpdate locks the row FOR UPDATE within a transaction, checks Version,
// and applies mutate before writing back with Version incremented.
func (s *taskStore) AtomicUpdate(ctx context.Context, id string, expectedVersion int, mutate func(*domain.Task)) (domain.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Task{}, mapErr(err, "begin task update")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, taskSelect+` WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTask(row)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Version != expectedVersion {
		return domain.Task{}, apierr.Newf(apierr.KindVersionConflict,
			"task %s has version %d, expected %d", id, t.Version, expectedVersion)
	}
	mutate(&t)
	t.Version++

	ac, err := marshal(t.AcceptanceCriteria)
	if err != nil {
		return domain.Task{}, err
	}
	vc, err := marshal(t.VerificationCommands)
	if err != nil {
		return domain.Task{}, err
	}
	deps, err := marshal(t.Dependencies)
	if err != nil {
		return domain.Task{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE tasks SET title=$2, objective=$3, scope=$4, acceptance_criteria=$5, verification_commands=$6,
			assigned_to=$7, status=$8, dependencies=$9, parallel_group=$10, session_id=$11,
			completion_summary=$12, verification_verdict=$13, verification_report=$14, version=$15
		WHERE id = $1`,
		t.ID, t.Title, t.Objective, t.Scope, ac, vc, t.AssignedTo, t.Status, deps, t.ParallelGroup,
		t.SessionID, t.CompletionSummary, t.VerificationVerdict, t.VerificationReport, t.Version)
	if err != nil {
		return domain.Task{}, mapErr(err, "update task")
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Task{}, mapErr(err, "commit task update")
	}
	return t, nil
}

func (s *taskStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE workspace_id = $1`, workspaceID)
	return mapErr(err, "delete tasks by workspace")
}

const taskSelect = `
	SELECT id, workspace_id, title, objective, scope, acceptance_criteria, verification_commands,
		assigned_to, status, dependencies, parallel_group, session_id, completion_summary,
		verification_verdict, verification_report, version
	FROM tasks`

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	var ac, vc, deps []byte
	if err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Objective, &t.Scope, &ac, &vc, &t.AssignedTo,
		&t.Status, &deps, &t.ParallelGroup, &t.SessionID, &t.CompletionSummary, &t.VerificationVerdict,
		&t.VerificationReport, &t.Version); err != nil {
		return domain.Task{}, mapErr(err, "scan task")
	}
	if err := json.Unmarshal(ac, &t.AcceptanceCriteria); err != nil {
		return domain.Task{}, mapErr(err, "decode acceptance criteria")
	}
	if err := json.Unmarshal(vc, &t.VerificationCommands); err != nil {
		return domain.Task{}, mapErr(err, "decode verification commands")
	}
	if err := json.Unmarshal(deps, &t.Dependencies); err != nil {
		return domain.Task{}, mapErr(err, "decode dependencies")
	}
	return t, nil
}

