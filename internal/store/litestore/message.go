package litestore

import (
	"context"
	"database/sql"

	"github.com/fleetctl/core/internal/domain"
)

type messageStore Store

func (s *messageStore) Append(ctx context.Context, m domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, agent_id, role, content, timestamp, tool_name, tool_args, turn)
		VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.AgentID, m.Role, m.Content, m.Timestamp, m.ToolName, m.ToolArgs, m.Turn)
	return mapErr(err, "append message")
}

// ListByAgent returns the most recent limit entries (limit <= 0 means
// unbounded) ordered by Timestamp ascending, matching memstore's semantics.
func (s *messageStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.Message, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, agent_id, role, content, timestamp, tool_name, tool_args, turn FROM (
				SELECT id, agent_id, role, content, timestamp, tool_name, tool_args, turn
				FROM messages WHERE agent_id = ? ORDER BY timestamp DESC LIMIT ?
			) recent ORDER BY timestamp ASC`, agentID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, agent_id, role, content, timestamp, tool_name, tool_args, turn
			FROM messages WHERE agent_id = ? ORDER BY timestamp ASC`, agentID)
	}
	if err != nil {
		return nil, mapErr(err, "list messages")
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Role, &m.Content, &m.Timestamp, &m.ToolName, &m.ToolArgs, &m.Turn); err != nil {
			return nil, mapErr(err, "scan message")
		}
		out = append(out, m)
	}
	return out, mapErr(rows.Err(), "list messages")
}
