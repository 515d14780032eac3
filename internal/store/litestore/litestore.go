// Package litestore is the embedded-KV Persistence Façade backend: a
// single-file, pure-Go SQLite database via modernc.org/sqlite, used for
// single-node deployments that don't want a Postgres dependency. Schema and
// query shape mirror pgstore's, adapted to SQLite's looser typing and
// database/sql instead of pgx.
package litestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/store"
)

// Store is the SQLite Facade implementation backed by a *sql.DB. SQLite
// serializes writers internally; callers don't need external locking.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database file at path and
// ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindPersistenceError, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // single-writer backend; avoid SQLITE_BUSY under concurrent goroutines
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
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
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apierr.Wrap(apierr.KindPersistenceError, "apply schema", err)
	}
	return nil
}

func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	return apierr.Wrap(apierr.KindPersistenceError, op, err)
}

func marshal(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	raw, err := json.Marshal(v)
	return string(raw), err
}

func unmarshalJSON(raw string, out any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// nullTime returns nil for the zero time so it is stored as SQL NULL rather
// than a meaningless year-one timestamp string.
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
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS codebases (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	repo_path TEXT NOT NULL,
	branch TEXT NOT NULL,
	label TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	source_type TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	model_tier TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	title TEXT NOT NULL,
	objective TEXT NOT NULL,
	scope TEXT NOT NULL,
	acceptance_criteria TEXT NOT NULL DEFAULT '[]',
	verification_commands TEXT NOT NULL DEFAULT '[]',
	assigned_to TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	dependencies TEXT NOT NULL DEFAULT '[]',
	parallel_group TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	completion_summary TEXT NOT NULL DEFAULT '',
	verification_verdict TEXT NOT NULL DEFAULT '',
	verification_report TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS notes (
	workspace_id TEXT NOT NULL,
	id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (workspace_id, id)
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
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
	first_prompt_sent INTEGER NOT NULL DEFAULT 0,
	message_history TEXT NOT NULL DEFAULT '[]',
	last_event_seq INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
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
	last_activity DATETIME,
	current_activity TEXT NOT NULL DEFAULT '',
	tool_call_count INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	workflow_run_id TEXT NOT NULL DEFAULT '',
	workflow_step_name TEXT NOT NULL DEFAULT '',
	depends_on_task_ids TEXT NOT NULL DEFAULT '[]',
	task_output TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME,
	updated_at DATETIME NOT NULL
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
	step_outputs TEXT NOT NULL DEFAULT '{}',
	total_steps INTEGER NOT NULL DEFAULT 0,
	completed_steps INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME,
	completed_at DATETIME,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS webhook_configs (
	id TEXT PRIMARY KEY,
	repo TEXT NOT NULL,
	event_types TEXT NOT NULL DEFAULT '{}',
	label_filter TEXT NOT NULL DEFAULT '{}',
	trigger_agent_id TEXT NOT NULL DEFAULT '',
	workspace_id TEXT NOT NULL DEFAULT '',
	webhook_secret TEXT NOT NULL DEFAULT '',
	github_token TEXT NOT NULL DEFAULT '',
	prompt_template TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS webhook_configs_repo_idx ON webhook_configs(repo);
CREATE TABLE IF NOT EXISTS webhook_trigger_logs (
	config_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_action TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '',
	background_task_id TEXT NOT NULL DEFAULT '',
	signature_valid INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
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
	enabled INTEGER NOT NULL DEFAULT 1,
	source TEXT NOT NULL
);
`
