package litestore

import (
	"context"
	"encoding/json"

	"github.com/fleetctl/core/internal/domain"
)

type agentStore Store

func (s *agentStore) Create(ctx context.Context, a domain.Agent) error {
	meta, err := marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Role, a.ModelTier, a.WorkspaceID, a.ParentID, a.Status, meta, a.CreatedAt, a.UpdatedAt)
	return mapErr(err, "create agent")
}

func (s *agentStore) Get(ctx context.Context, id string) (domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *agentStore) Update(ctx context.Context, a domain.Agent) error {
	meta, err := marshal(a.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET name = ?, role = ?, model_tier = ?, status = ?, metadata = ?, updated_at = ?
		WHERE id = ?`, a.Name, a.Role, a.ModelTier, a.Status, meta, a.UpdatedAt, a.ID)
	return checkAffected(res, err, "update agent")
}

func (s *agentStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error) {
	return s.query(ctx, `WHERE workspace_id = ?`, workspaceID)
}

func (s *agentStore) ListChildren(ctx context.Context, parentID string) ([]domain.Agent, error) {
	return s.query(ctx, `WHERE parent_id = ?`, parentID)
}

func (s *agentStore) query(ctx context.Context, where string, arg string) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, model_tier, workspace_id, parent_id, status, metadata, created_at, updated_at
		FROM agents `+where, arg)
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
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE workspace_id = ?`, workspaceID)
	return mapErr(err, "delete agents by workspace")
}

func scanAgent(row scanner) (domain.Agent, error) {
	var a domain.Agent
	var meta string
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.ModelTier, &a.WorkspaceID, &a.ParentID, &a.Status, &meta, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Agent{}, mapErr(err, "scan agent")
	}
	if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
		return domain.Agent{}, mapErr(err, "decode agent metadata")
	}
	return a, nil
}
