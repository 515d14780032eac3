// Package pgstore is the remote-SQL Persistence Façade backend, grounded on
// iota-uz-iota-sdk's pgxpool.Pool-per-store convention. Every entity is
// stored in its own table; fields without a natural SQL type (string maps,
// slices) are marshaled to JSON columns so the schema stays a flat,
// migration-friendly shape.
package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/store"
)

// Store is the Postgres Facade implementation backed by a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindPersistenceError, "connect to postgres", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

var _ store.Facade = (*Store)(nil)

func (s *Store) Workspaces() store.Workspaces           { return (*workspaceStore)(s) }
func (s *Store) Codebases() store.Codebases             { return (*codebaseStore)(s) }
func (s *Store) Agents() store.Agents                   { return (*agentStore)(s) }
func (s *Store) Tasks() store.Tasks                     { return (*taskStore)(s) }
func (s *Store) Notes() store.Notes                     { return (*noteStore)(s) }
func (s *Store) Messages() store.Messages               { return (*messageStore)(s) }
func (s *Store) ACPSessions() store.ACPSessions         { return (*acpSessionStore)(s) }
func (s *Store) BackgroundTasks() store.BackgroundTasks { return (*backgroundTaskStore)(s) }
func (s *Store) WorkflowRuns() store.WorkflowRuns       { return (*workflowRunStore)(s) }
func (s *Store) WebhookConfigs() store.WebhookConfigs   { return (*webhookConfigStore)(s) }
func (s *Store) WebhookTriggerLogs() store.WebhookTriggerLogs {
	return (*webhookLogStore)(s)
}
func (s *Store) Specialists() store.Specialists { return (*specialistStore)(s) }

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return apierr.Wrap(apierr.KindPersistenceError, "apply schema", err)
	}
	return nil
}

func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if err == pgx.ErrNoRows {
		return store.ErrNotFound
	}
	return apierr.Wrap(apierr.KindPersistenceError, op, err)
}

func marshal(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// nullTime returns nil for the zero time so it is stored as SQL NULL rather
// than Postgres's year-zero timestamp, which round-trips incorrectly.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS codebases (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	repo_path TEXT NOT NULL,
	branch TEXT NOT NULL,
	label TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	source_type TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	model_tier TEXT NOT NULL,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	parent_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	objective TEXT NOT NULL,
	scope TEXT NOT NULL,
	acceptance_criteria JSONB NOT NULL DEFAULT '[]',
	verification_commands JSONB NOT NULL DEFAULT '[]',
	assigned_to TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	dependencies JSONB NOT NULL DEFAULT '[]',
	parallel_group TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	completion_summary TEXT NOT NULL DEFAULT '',
	verification_verdict TEXT NOT NULL DEFAULT '',
	verification_report TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS notes (
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (workspace_id, id)
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	tool_name TEXT NOT NULL DEFAULT '',
	tool_args TEXT NOT NULL DEFAULT '',
	turn INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS messages_agent_id_idx ON messages(agent_id, timestamp);
CREATE TABLE IF NOT EXISTS acp_sessions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	cwd TEXT NOT NULL,
	workspace_id TEXT NOT NULL DEFAULT '',
	routa_agent_id TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	role TEXT NOT NULL,
	mode_id TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	first_prompt_sent BOOLEAN NOT NULL DEFAULT FALSE,
	message_history JSONB NOT NULL DEFAULT '[]',
	last_event_seq BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS background_tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	prompt TEXT NOT NULL,
	agent_id TEXT NOT NULL DEFAULT '',
	workspace_id TEXT NOT NULL,
	status TEXT NOT NULL,
	triggered_by TEXT NOT NULL DEFAULT '',
	trigger_source TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 1,
	result_session_id TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 1,
	last_activity TIMESTAMPTZ,
	current_activity TEXT NOT NULL DEFAULT '',
	tool_call_count INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	workflow_run_id TEXT NOT NULL DEFAULT '',
	workflow_step_name TEXT NOT NULL DEFAULT '',
	depends_on_task_ids JSONB NOT NULL DEFAULT '[]',
	task_output TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS workflow_runs (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	workflow_name TEXT NOT NULL,
	workflow_version TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	status TEXT NOT NULL,
	trigger_source TEXT NOT NULL,
	trigger_payload TEXT NOT NULL DEFAULT '',
	current_step_name TEXT NOT NULL DEFAULT '',
	step_outputs JSONB NOT NULL DEFAULT '{}',
	total_steps INTEGER NOT NULL DEFAULT 0,
	completed_steps INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS webhook_configs (
	id TEXT PRIMARY KEY,
	repo TEXT NOT NULL,
	event_types JSONB NOT NULL DEFAULT '{}',
	label_filter JSONB NOT NULL DEFAULT '{}',
	trigger_agent_id TEXT NOT NULL DEFAULT '',
	workspace_id TEXT NOT NULL DEFAULT '',
	webhook_secret TEXT NOT NULL DEFAULT '',
	github_token TEXT NOT NULL DEFAULT '',
	prompt_template TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS webhook_configs_repo_idx ON webhook_configs(repo);
CREATE TABLE IF NOT EXISTS webhook_trigger_logs (
	config_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_action TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '',
	background_task_id TEXT NOT NULL DEFAULT '',
	signature_valid BOOLEAN NOT NULL DEFAULT FALSE,
	outcome TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS webhook_trigger_logs_config_idx ON webhook_trigger_logs(config_id, created_at);
CREATE TABLE IF NOT EXISTS specialists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	default_model_tier TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	role_reminder TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	source TEXT NOT NULL
);
`
