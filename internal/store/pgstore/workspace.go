package pgstore

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type workspaceStore Store

func (s *workspaceStore) Create(ctx context.Context, w domain.Workspace) error {
	meta, err := marshal(w.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workspaces (id, title, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.Title, w.Status, meta, w.CreatedAt, w.UpdatedAt)
	return mapErr(err, "create workspace")
}

func (s *workspaceStore) Get(ctx context.Context, id string) (domain.Workspace, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, status, metadata, created_at, updated_at FROM workspaces WHERE id = $1`, id)
	return scanWorkspace(row)
}

func (s *workspaceStore) Update(ctx context.Context, w domain.Workspace) error {
	meta, err := marshal(w.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE workspaces SET title = $2, status = $3, metadata = $4, updated_at = $5 WHERE id = $1`,
		w.ID, w.Title, w.Status, meta, w.UpdatedAt)
	if err != nil {
		return mapErr(err, "update workspace")
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "update workspace")
	}
	return nil
}

// Delete relies on ON DELETE CASCADE across codebases, agents, tasks, and
// notes; acp_sessions has no foreign key, so its rows are deleted
// explicitly, matching the Workspace entity's cascade invariant.
func (s *workspaceStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete workspace")
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "delete workspace")
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM acp_sessions WHERE workspace_id = $1`, id); err != nil {
		return mapErr(err, "cascade delete workspace")
	}
	return nil
}

func (s *workspaceStore) List(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, status, metadata, created_at, updated_at FROM workspaces`)
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

func scanWorkspace(row pgx.Row) (domain.Workspace, error) {
	var w domain.Workspace
	var meta []byte
	if err := row.Scan(&w.ID, &w.Title, &w.Status, &meta, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return domain.Workspace{}, mapErr(err, "scan workspace")
	}
	if err := json.Unmarshal(meta, &w.Metadata); err != nil {
		return domain.Workspace{}, mapErr(err, "decode workspace metadata")
	}
	return w, nil
}
