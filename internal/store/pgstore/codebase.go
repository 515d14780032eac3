package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type codebaseStore Store

func (s *codebaseStore) Create(ctx context.Context, c domain.Codebase) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO codebases (id, workspace_id, repo_path, branch, label, is_default, source_type, source_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.WorkspaceID, c.RepoPath, c.Branch, c.Label, c.IsDefault, c.SourceType, c.SourceURL)
	return mapErr(err, "create codebase")
}

func (s *codebaseStore) Get(ctx context.Context, id string) (domain.Codebase, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workspace_id, repo_path, branch, label, is_default, source_type, source_url
		FROM codebases WHERE id = $1`, id)
	return scanCodebase(row)
}

func (s *codebaseStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Codebase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workspace_id, repo_path, branch, label, is_default, source_type, source_url
		FROM codebases WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		return nil, mapErr(err, "list codebases")
	}
	defer rows.Close()
	var out []domain.Codebase
	for rows.Next() {
		c, err := scanCodebase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err(), "list codebases")
}

func (s *codebaseStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM codebases WHERE id = $1`, id)
	return mapErr(err, "delete codebase")
}

func (s *codebaseStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM codebases WHERE workspace_id = $1`, workspaceID)
	return mapErr(err, "delete codebases by workspace")
}

func scanCodebase(row pgx.Row) (domain.Codebase, error) {
	var c domain.Codebase
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.RepoPath, &c.Branch, &c.Label, &c.IsDefault, &c.SourceType, &c.SourceURL); err != nil {
		return domain.Codebase{}, mapErr(err, "scan codebase")
	}
	return c, nil
}
