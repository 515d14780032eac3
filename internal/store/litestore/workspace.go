package litestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type workspaceStore Store

type scanner interface {
	Scan(dest ...any) error
}

func (s *workspaceStore) Create(ctx context.Context, w domain.Workspace) error {
	meta, err := marshal(w.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, title, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Title, w.Status, meta, w.CreatedAt, w.UpdatedAt)
	return mapErr(err, "create workspace")
}

func (s *workspaceStore) Get(ctx context.Context, id string) (domain.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, metadata, created_at, updated_at FROM workspaces WHERE id = ?`, id)
	return scanWorkspace(row)
}

func (s *workspaceStore) Update(ctx context.Context, w domain.Workspace) error {
	meta, err := marshal(w.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET title = ?, status = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		w.Title, w.Status, meta, w.UpdatedAt, w.ID)
	return checkAffected(res, err, "update workspace")
}

// Delete cascades manually: SQLite foreign keys are off by default and this
// backend doesn't turn them on, so each child table is cleared explicitly,
// matching the Workspace entity's cascade invariant.
func (s *workspaceStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err, "delete workspace")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err := checkAffected(res, err, "delete workspace"); err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM codebases WHERE workspace_id = ?`,
		`DELETE FROM agents WHERE workspace_id = ?`,
		`DELETE FROM tasks WHERE workspace_id = ?`,
		`DELETE FROM notes WHERE workspace_id = ?`,
		`DELETE FROM acp_sessions WHERE workspace_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return mapErr(err, "cascade delete workspace")
		}
	}
	return mapErr(tx.Commit(), "delete workspace")
}

func (s *workspaceStore) List(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, status, metadata, created_at, updated_at FROM workspaces`)
	if err != nil {
		return nil, mapErr(err, "list workspaces")
	}
	defer rows.Close()
	var out []domain.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, mapErr(rows.Err(), "list workspaces")
}

func scanWorkspace(row scanner) (domain.Workspace, error) {
	var w domain.Workspace
	var meta string
	if err := row.Scan(&w.ID, &w.Title, &w.Status, &meta, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return domain.Workspace{}, mapErr(err, "scan workspace")
	}
	if err := json.Unmarshal([]byte(meta), &w.Metadata); err != nil {
		return domain.Workspace{}, mapErr(err, "decode workspace metadata")
	}
	return w, nil
}

func checkAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return mapErr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, op)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
