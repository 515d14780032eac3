package litestore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
)

type specialistStore Store

func (s *specialistStore) Upsert(ctx context.Context, sp domain.Specialist) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO specialists (id, name, description, role, default_model_tier, system_prompt,
			role_reminder, model, enabled, source)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			name=excluded.name, description=excluded.description, role=excluded.role,
			default_model_tier=excluded.default_model_tier, system_prompt=excluded.system_prompt,
			role_reminder=excluded.role_reminder, model=excluded.model, enabled=excluded.enabled,
			source=excluded.source`,
		sp.ID, sp.Name, sp.Description, sp.Role, sp.DefaultModelTier, sp.SystemPrompt, sp.RoleReminder,
		sp.Model, sp.Enabled, sp.Source)
	return mapErr(err, "upsert specialist")
}

func (s *specialistStore) Get(ctx context.Context, id string) (domain.Specialist, error) {
	row := s.db.QueryRowContext(ctx, specialistSelect+` WHERE id = ?`, id)
	return scanSpecialist(row)
}

func (s *specialistStore) List(ctx context.Context) ([]domain.Specialist, error) {
	rows, err := s.db.QueryContext(ctx, specialistSelect)
	if err != nil {
		return nil, mapErr(err, "list specialists")
	}
	defer rows.Close()
	var out []domain.Specialist
	for rows.Next() {
		sp, err := scanSpecialist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, mapErr(rows.Err(), "list specialists")
}

const specialistSelect = `
	SELECT id, name, description, role, default_model_tier, system_prompt, role_reminder, model,
		enabled, source
	FROM specialists`

func scanSpecialist(row scanner) (domain.Specialist, error) {
	var sp domain.Specialist
	if err := row.Scan(&sp.ID, &sp.Name, &sp.Description, &sp.Role, &sp.DefaultModelTier, &sp.SystemPrompt,
		&sp.RoleReminder, &sp.Model, &sp.Enabled, &sp.Source); err != nil {
		return domain.Specialist{}, mapErr(err, "scan specialist")
	}
	return sp, nil
}
