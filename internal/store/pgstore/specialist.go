package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type specialistStore Store

func (s *specialistStore) Upsert(ctx context.Context, sp domain.Specialist) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO specialists (id, name, description, role, default_model_tier, system_prompt,
			role_reminder, model, enabled, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, description=EXCLUDED.description, role=EXCLUDED.role,
			default_model_tier=EXCLUDED.default_model_tier, system_prompt=EXCLUDED.system_prompt,
			role_reminder=EXCLUDED.role_reminder, model=EXCLUDED.model, enabled=EXCLUDED.enabled,
			source=EXCLUDED.source`,
		sp.ID, sp.Name, sp.Description, sp.Role, sp.DefaultModelTier, sp.SystemPrompt, sp.RoleReminder,
		sp.Model, sp.Enabled, sp.Source)
	return mapErr(err, "upsert specialist")
}

func (s *specialistStore) Get(ctx context.Context, id string) (domain.Specialist, error) {
	row := s.pool.QueryRow(ctx, specialistSelect+` WHERE id = $1`, id)
	return scanSpecialist(row)
}

func (s *specialistStore) List(ctx context.Context) ([]domain.Specialist, error) {
	rows, err := s.pool.Query(ctx, specialistSelect)
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

func scanSpecialist(row pgx.Row) (domain.Specialist, error) {
	var sp domain.Specialist
	if err := row.Scan(&sp.ID, &sp.Name, &sp.Description, &sp.Role, &sp.DefaultModelTier, &sp.SystemPrompt,
		&sp.RoleReminder, &sp.Model, &sp.Enabled, &sp.Source); err != nil {
		return domain.Specialist{}, mapErr(err, "scan specialist")
	}
	return sp, nil
}
