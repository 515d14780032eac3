package pgstore

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
	_, err = s.pool.Exec(ctx, `
		INSERT INTO acp_sessions (id, name, cwd, workspace_id, routa_agent_id, provider, role, mode_id,
			model, first_prompt_sent, message_history, last_event_seq, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, cwd=EXCLUDED.cwd, workspace_id=EXCLUDED.workspace_id,
			routa_agent_id=EXCLUDED.routa_agent_id, provider=EXCLUDED.provider, role=EXCLUDED.role,
			mode_id=EXCLUDED.mode_id, model=EXCLUDED.model, first_prompt_sent=EXCLUDED.first_prompt_sent,
			message_history=EXCLUDED.message_history, last_event_seq=EXCLUDED.last_event_seq,
			updated_at=EXCLUDED.updated_at`,
		sess.ID, sess.Name, sess.Cwd, sess.WorkspaceID, sess.RoutaAgentID, sess.Provider, sess.Role,
		sess.ModeID, sess.Model, sess.FirstPromptSent, hist, sess.LastEventSeq, sess.CreatedAt, sess.UpdatedAt)
	return mapErr(err, "upsert acp session")
}

func (s *acpSessionStore) Get(ctx context.Context, id string) (domain.ACPSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, cwd, workspace_id, routa_agent_id, provider, role, mode_id, model,
			first_prompt_sent, message_history, last_event_seq, created_at, updated_at
		FROM acp_sessions WHERE id = $1`, id)
	var sess domain.ACPSession
	var hist []byte
	if err := row.Scan(&sess.ID, &sess.Name, &sess.Cwd, &sess.WorkspaceID, &sess.RoutaAgentID, &sess.Provider,
		&sess.Role, &sess.ModeID, &sess.Model, &sess.FirstPromptSent, &hist, &sess.LastEventSeq,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return domain.ACPSession{}, mapErr(err, "scan acp session")
	}
	if err := json.Unmarshal(hist, &sess.MessageHistory); err != nil {
		return domain.ACPSession{}, mapErr(err, "decode acp session history")
	}
	return sess, nil
}

func (s *acpSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM acp_sessions WHERE id = $1`, id)
	return mapErr(err, "delete acp session")
}
