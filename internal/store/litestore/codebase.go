package litestore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
)

type codebaseStore Store

func (s *codebaseStore) Create(ctx context.Context, c domain.Codebase) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codebases (id, workspace_id, repo_path, branch, label, is_default, source_type, source_url)
		VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.WorkspaceID, c.RepoPath, c.Branch, c.Label, c.IsDefault, c.SourceType, c.SourceURL)
	return mapErr(err, "create codebase")
}

func (s *codebaseStore) Get(ctx context.Context, id string) (domain.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, repo_path, branch, label, is_default, source_type, source_url
		FROM codebases WHERE id = ?`, id)
	return scanCodebase(row)
}

func (s *codebaseStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Codebase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, repo_path, branch, label, is_default, source_type, source_url
		FROM codebases WHERE workspace_id = ?`, workspaceID)
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
	_, err := s.db.ExecContext(ctx, `DELETE FROM codebases WHERE id = ?`, id)
	return mapErr(err, "delete codebase")
}

func (s *codebaseStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM codebases WHERE workspace_id = ?`, workspaceID)
	return mapErr(err, "delete codebases by workspace")
}

func scanCodebase(row scanner) (domain.Codebase, error) {
	var c domain.Codebase
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.RepoPath, &c.Branch, &c.Label, &c.IsDefault, &c.SourceType, &c.SourceURL); err != nil {
		return domain.Codebase{}, mapErr(err, "scan codebase")
	}
	return c, nil
}
