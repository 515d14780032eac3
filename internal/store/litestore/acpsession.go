package litestore

import (
	"context"
	"encoding/json"

	"github.com/fleetctl/core/internal/domain"
)

type acpSessionStore Store

func (s *acpSessionStore) Upsert(ctx context.Context, sess domain.ACPSession) error {
	hist, err := marshal(sess.MessageHistory)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO acp_sessions (id, name, cwd, workspace_id, routa_agent_id, provider, role, mode_id,
			model, first_prompt_sent, message_history, last_event_seq, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			name=excluded.name, cwd=excluded.cwd, workspace_id=excluded.workspace_id,
			routa_agent_id=excluded.routa_agent_id, provider=excluded.provider, role=excluded.role,
			mode_id=excluded.mode_id, model=excluded.model, first_prompt_sent=excluded.first_prompt_sent,
			message_history=excluded.message_history, last_event_seq=excluded.last_event_seq,
			updated_at=excluded.updated_at`,
		sess.ID, sess.Name, sess.Cwd, sess.WorkspaceID, sess.RoutaAgentID, sess.Provider, sess.Role,
		sess.ModeID, sess.Model, sess.FirstPromptSent, hist, sess.LastEventSeq, sess.CreatedAt, sess.UpdatedAt)
	return mapErr(err, "upsert acp session")
}

func (s *acpSessionStore) Get(ctx context.Context, id string) (domain.ACPSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, cwd, workspace_id, routa_agent_id, provider, role, mode_id, model,
			first_prompt_sent, message_history, last_event_seq, created_at, updated_at
		FROM acp_sessions WHERE id = ?`, id)
	var sess domain.ACPSession
	var hist string
	if err := row.Scan(&sess.ID, &sess.Name, &sess.Cwd, &sess.WorkspaceID, &sess.RoutaAgentID, &sess.Provider,
		&sess.Role, &sess.ModeID, &sess.Model, &sess.FirstPromptSent, &hist, &sess.LastEventSeq,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return domain.ACPSession{}, mapErr(err, "scan acp session")
	}
	if err := json.Unmarshal([]byte(hist), &sess.MessageHistory); err != nil {
		return domain.ACPSession{}, mapErr(err, "decode acp session history")
	}
	return sess, nil
}

func (s *acpSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM acp_sessions WHERE id = ?`, id)
	return mapErr(err, "delete acp session")
}
