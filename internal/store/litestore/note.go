package litestore

import (
	"context"
	"encoding/json"

	"github.com/fleetctl/core/internal/domain"
)

type noteStore Store

func (s *noteStore) Upsert(ctx context.Context, n domain.Note) error {
	meta, err := marshal(n.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (workspace_id, id, session_id, title, content, metadata)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (workspace_id, id) DO UPDATE SET
			session_id = excluded.session_id, title = excluded.title,
			content = excluded.content, metadata = excluded.metadata`,
		n.WorkspaceID, n.ID, n.SessionID, n.Title, n.Content, meta)
	return mapErr(err, "upsert note")
}

func (s *noteStore) Get(ctx context.Context, workspaceID, id string) (domain.Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, id, session_id, title, content, metadata
		FROM notes WHERE workspace_id = ? AND id = ?`, workspaceID, id)
	return scanNote(row)
}

func (s *noteStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workspace_id, id, session_id, title, content, metadata
		FROM notes WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, mapErr(err, "list notes")
	}
	defer rows.Close()
	var out []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, mapErr(rows.Err(), "list notes")
}

func (s *noteStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE workspace_id = ?`, workspaceID)
	return mapErr(err, "delete notes by workspace")
}

func scanNote(row scanner) (domain.Note, error) {
	var n domain.Note
	var meta string
	if err := row.Scan(&n.WorkspaceID, &n.ID, &n.SessionID, &n.Title, &n.Content, &meta); err != nil {
		return domain.Note{}, mapErr(err, "scan note")
	}
	if err := json.Unmarshal([]byte(meta), &n.Metadata); err != nil {
		return domain.Note{}, mapErr(err, "decode note metadata")
	}
	return n, nil
}
