package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type webhookConfigStore Store

func (s *webhookConfigStore) Upsert(ctx context.Context, c domain.WebhookConfig) error {
	events, err := marshal(c.EventTypes)
	if err != nil {
		return err
	}
	labels, err := marshal(c.LabelFilter)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhook_configs (id, repo, event_types, label_filter, trigger_agent_id, workspace_id,
			webhook_secret, github_token, prompt_template, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			repo=EXCLUDED.repo, event_types=EXCLUDED.event_types, label_filter=EXCLUDED.label_filter,
			trigger_agent_id=EXCLUDED.trigger_agent_id, workspace_id=EXCLUDED.workspace_id,
			webhook_secret=EXCLUDED.webhook_secret, github_token=EXCLUDED.github_token,
			prompt_template=EXCLUDED.prompt_template, enabled=EXCLUDED.enabled`,
		c.ID, c.Repo, events, labels, c.TriggerAgentID, c.WorkspaceID, c.WebhookSecret, c.GitHubToken,
		c.PromptTemplate, c.Enabled)
	return mapErr(err, "upsert webhook config")
}

func (s *webhookConfigStore) Get(ctx context.Context, id string) (domain.WebhookConfig, error) {
	row := s.pool.QueryRow(ctx, webhookConfigSelect+` WHERE id = $1`, id)
	return scanWebhookConfig(row)
}

func (s *webhookConfigStore) ListByRepo(ctx context.Context, repo string) ([]domain.WebhookConfig, error) {
	return s.query(ctx, `WHERE repo = $1`, repo)
}

func (s *webhookConfigStore) ListEnabled(ctx context.Context) ([]domain.WebhookConfig, error) {
	return s.query(ctx, `WHERE enabled = TRUE`, nil)
}

func (s *webhookConfigStore) query(ctx context.Context, where string, arg any) ([]domain.WebhookConfig, error) {
	var rows pgx.Rows
	var err error
	if arg != nil {
		rows, err = s.pool.Query(ctx, webhookConfigSelect+" "+where, arg)
	} else {
		rows, err = s.pool.Query(ctx, webhookConfigSelect+" "+where)
	}
	if err != nil {
		return nil, mapErr(err, "list webhook configs")
	}
	defer rows.Close()
	var out []domain.WebhookConfig
	for rows.Next() {
		c, err := scanWebhookConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err(), "list webhook configs")
}

const webhookConfigSelect = `
	SELECT id, repo, event_types, label_filter, trigger_agent_id, workspace_id, webhook_secret,
		github_token, prompt_template, enabled
	FROM webhook_configs`

func scanWebhookConfig(row pgx.Row) (domain.WebhookConfig, error) {
	var c domain.WebhookConfig
	var events, labels []byte
	if err := row.Scan(&c.ID, &c.Repo, &events, &labels, &c.TriggerAgentID, &c.WorkspaceID, &c.WebhookSecret,
		&c.GitHubToken, &c.PromptTemplate, &c.Enabled); err != nil {
		return domain.WebhookConfig{}, mapErr(err, "scan webhook config")
	}
	if err := unmarshalJSON(events, &c.EventTypes); err != nil {
		return domain.WebhookConfig{}, mapErr(err, "decode event types")
	}
	if err := unmarshalJSON(labels, &c.LabelFilter); err != nil {
		return domain.WebhookConfig{}, mapErr(err, "decode label filter")
	}
	return c, nil
}

type webhookLogStore Store

func (s *webhookLogStore) Append(ctx context.Context, l domain.WebhookTriggerLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_trigger_logs (config_id, event_type, event_action, payload,
			background_task_id, signature_valid, outcome, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		l.ConfigID, l.EventType, l.EventAction, l.Payload, l.BackgroundTaskID, l.SignatureValid,
		l.Outcome, l.ErrorMessage, l.CreatedAt)
	return mapErr(err, "append webhook trigger log")
}

func (s *webhookLogStore) ListByConfig(ctx context.Context, configID string, limit int) ([]domain.WebhookTriggerLog, error) {
	sql := `
		SELECT config_id, event_type, event_action, payload, background_task_id, signature_valid,
			outcome, error_message, created_at
		FROM webhook_trigger_logs WHERE config_id = $1 ORDER BY created_at ASC`
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = s.pool.Query(ctx, sql+` LIMIT $2`, configID, limit)
	} else {
		rows, err = s.pool.Query(ctx, sql, configID)
	}
	if err != nil {
		return nil, mapErr(err, "list webhook trigger logs")
	}
	defer rows.Close()
	var out []domain.WebhookTriggerLog
	for rows.Next() {
		var l domain.WebhookTriggerLog
		if err := rows.Scan(&l.ConfigID, &l.EventType, &l.EventAction, &l.Payload, &l.BackgroundTaskID,
			&l.SignatureValid, &l.Outcome, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, mapErr(err, "scan webhook trigger log")
		}
		out = append(out, l)
	}
	return out, mapErr(rows.Err(), "list webhook trigger logs")
}
