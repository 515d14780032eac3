package pgstore

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type agentStore Store

func (s *agentStore) Create(ctx context.Context, a domain.Agent) error {
	meta, err := marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Name, a.Role, a.ModelTier, a.WorkspaceID, a.ParentID, a.Status, meta, a.CreatedAt, a.UpdatedAt)
	return mapErr(err, "create agent")
}

func (s *agentStore) Get(ctx context.Context, id string) (domain.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (s *agentStore) Update(ctx context.Context, a domain.Agent) error {
	meta, err := marshal(a.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET name = $2, role = $3, model_tier = $4, status = $5, metadata = $6, updated_at = $7
		WHERE id = $1`, a.ID, a.Name, a.Role, a.ModelTier, a.Status, meta, a.UpdatedAt)
	if err != nil {
		return mapErr(err, "update agent")
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "update agent")
	}
	return nil
}

func (s *agentStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error) {
	return s.query(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE workspace_id = $1`, workspaceID)
}

func (s *agentStore) ListChildren(ctx context.Context, parentID string) ([]domain.Agent, error) {
	return s.query(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE parent_id = $1`, parentID)
}

func (s *agentStore) query(ctx context.Context, sql string, arg string) ([]domain.Agent, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, mapErr(err, "list agents")
	}
	defer rows.Close()
	var out []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err(), "list agents")
}

func (s *agentStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE workspace_id = $1`, workspaceID)
	return mapErr(err, "delete agents by workspace")
}

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var a domain.Agent
	var meta []byte
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.ModelTier, &a.WorkspaceID, &a.ParentID, &a.Status, &meta, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Agent{}, mapErr(err, "scan agent")
	}
	if err := json.Unmarshal(meta, &a.Metadata); err != nil {
		return domain.Agent{}, mapErr(err, "decode agent metadata")
	}
	return a, nil
}
