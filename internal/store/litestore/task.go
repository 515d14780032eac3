package litestore

import (
	"context"
	"database/sql"
	"encoding/json"

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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, workspace_id, title, objective, scope, acceptance_criteria,
			verification_commands, assigned_to, status, dependencies, parallel_group, session_id,
			completion_summary, verification_verdict, verification_report, version)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceID, t.Title, t.Objective, t.Scope, ac, vc, t.AssignedTo, t.Status, deps,
		t.ParallelGroup, t.SessionID, t.CompletionSummary, t.VerificationVerdict, t.VerificationReport, t.Version)
	if err != nil {
		return domain.Task{}, mapErr(err, "create task")
	}
	return t, nil
}

func (s *taskStore) Get(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	return scanTask(row)
}

func (s *taskStore) ListByWorkspace(ctx context.Context, workspaceID string, filter store.TaskFilter) ([]domain.Task, error) {
	query := taskSelect + ` WHERE workspace_id = ?`
	args := []any{workspaceID}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.AssignedTo != "" {
		query += " AND assigned_to = ?"
		args = append(args, filter.AssignedTo)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

// AtomicUpdate runs inside a transaction on the store's single connection
// (SetMaxOpenConns(1)), so no other writer can interleave between the
// version check and the write-back.
func (s *taskStore) AtomicUpdate(ctx context.Context, id string, expectedVersion int, mutate func(*domain.Task)) (domain.Task, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.Task{}, mapErr(err, "begin task update")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
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
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET title=?, objective=?, scope=?, acceptance_criteria=?, verification_commands=?,
			assigned_to=?, status=?, dependencies=?, parallel_group=?, session_id=?,
			completion_summary=?, verification_verdict=?, verification_report=?, version=?
		WHERE id = ?`,
		t.Title, t.Objective, t.Scope, ac, vc, t.AssignedTo, t.Status, deps, t.ParallelGroup,
		t.SessionID, t.CompletionSummary, t.VerificationVerdict, t.VerificationReport, t.Version, t.ID)
	if err != nil {
		return domain.Task{}, mapErr(err, "update task")
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, mapErr(err, "commit task update")
	}
	return t, nil
}

func (s *taskStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE workspace_id = ?`, workspaceID)
	return mapErr(err, "delete tasks by workspace")
}

const taskSelect = `
	SELECT id, workspace_id, title, objective, scope, acceptance_criteria, verification_commands,
		assigned_to, status, dependencies, parallel_group, session_id, completion_summary,
		verification_verdict, verification_report, version
	FROM tasks`

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var ac, vc, deps string
	if err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Objective, &t.Scope, &ac, &vc, &t.AssignedTo,
		&t.Status, &deps, &t.ParallelGroup, &t.SessionID, &t.CompletionSummary, &t.VerificationVerdict,
		&t.VerificationReport, &t.Version); err != nil {
		return domain.Task{}, mapErr(err, "scan task")
	}
	if err := json.Unmarshal([]byte(ac), &t.AcceptanceCriteria); err != nil {
		return domain.Task{}, mapErr(err, "decode acceptance criteria")
	}
	if err := json.Unmarshal([]byte(vc), &t.VerificationCommands); err != nil {
		return domain.Task{}, mapErr(err, "decode verification commands")
	}
	if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
		return domain.Task{}, mapErr(err, "decode dependencies")
	}
	return t, nil
}
