package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fleetctl/core/internal/domain"
)

type messageStore Store

func (s *messageStore) Append(ctx context.Context, m domain.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, agent_id, role, content, timestamp, tool_name, tool_args, turn)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.AgentID, m.Role, m.Content, m.Timestamp, m.ToolName, m.ToolArgs, m.Turn)
	return mapErr(err, "append message")
}

// ListByAgent returns the most recent limit entries (limit <= 0 means
// unbounded) ordered by Timestamp ascending, matching memstore's semantics.
func (s *messageStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.Message, error) {
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT id, agent_id, role, content, timestamp, tool_name, tool_args, turn FROM (
				SELECT id, agent_id, role, content, timestamp, tool_name, tool_args, turn
				FROM messages WHERE agent_id = $1 ORDER BY timestamp DESC LIMIT $2
			) recent ORDER BY timestamp ASC`, agentID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, agent_id, role, content, timestamp, tool_name, tool_args, turn
			FROM messages WHERE agent_id = $1 ORDER BY timestamp ASC`, agentID)
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
