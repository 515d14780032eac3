package tools

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetctl/core/internal/domain"
)

// CreateNoteInput is create_note's payload.
type CreateNoteInput struct {
	WorkspaceID string              `json:"workspaceId"`
	SessionID   string              `json:"sessionId,omitempty"`
	Title       string              `json:"title"`
	Content     string              `json:"content"`
	Metadata    domain.NoteMetadata `json:"metadata,omitempty"`
}

// CreateNote persists a new note.
func (e *Endpoint) CreateNote(ctx context.Context, in CreateNoteInput) Result {
	if in.WorkspaceID == "" {
		return failMsg("workspaceId is required")
	}
	n := domain.Note{
		ID:          uuid.NewString(),
		WorkspaceID: in.WorkspaceID,
		SessionID:   in.SessionID,
		Title:       in.Title,
		Content:     in.Content,
		Metadata:    in.Metadata,
	}
	if err := e.store.Notes().Upsert(ctx, n); err != nil {
		return fail(err)
	}
	return ok(map[string]string{"noteId": n.ID})
}

// ReadNoteInput is read_note's payload.
type ReadNoteInput struct {
	WorkspaceID string `json:"workspaceId"`
	NoteID      string `json:"noteId"`
}

// ReadNote returns a single note by id.
func (e *Endpoint) ReadNote(ctx context.Context, in ReadNoteInput) Result {
	n, err := e.store.Notes().Get(ctx, in.WorkspaceID, in.NoteID)
	if err != nil {
		return fail(err)
	}
	return ok(n)
}

// ListNotesInput is list_notes's payload.
type ListNotesInput struct {
	WorkspaceID string `json:"workspaceId"`
}

// ListNotes returns every note in a workspace.
func (e *Endpoint) ListNotes(ctx context.Context, in ListNotesInput) Result {
	notes, err := e.store.Notes().ListByWorkspace(ctx, in.WorkspaceID)
	if err != nil {
		return fail(err)
	}
	return ok(notes)
}

// SetNoteContentInput is set_note_content's payload.
type SetNoteContentInput struct {
	WorkspaceID string `json:"workspaceId"`
	NoteID      string `json:"noteId"`
	Content     string `json:"content"`
}

// SetNoteContent overwrites a note's content. On the singleton spec note
// (domain.SpecNoteID), it additionally detects `@@@task ... @@@` blocks and
// creates a Task row for each, one after another, returning the new taskIds
// alongside the updated note (spec §4.5). The note write and the task
// creations do not share a transaction: an error part-way leaves the note
// updated and the tasks created before it in place.
func (e *Endpoint) SetNoteContent(ctx context.Context, in SetNoteContentInput) Result {
	n, err := e.store.Notes().Get(ctx, in.WorkspaceID, in.NoteID)
	if err != nil {
		return fail(err)
	}
	n.Content = in.Content
	if err := e.store.Notes().Upsert(ctx, n); err != nil {
		return fail(err)
	}

	if in.NoteID != domain.SpecNoteID {
		return ok(map[string]any{"noteId": n.ID})
	}

	blocks := parseTaskBlocks(in.Content)
	var taskIDs []string
	for _, b := range blocks {
		task := domain.Task{
			ID:                   uuid.NewString(),
			Title:                b.Title,
			Objective:            b.Objective,
			Scope:                b.Scope,
			AcceptanceCriteria:   b.AcceptanceCriteria,
			VerificationCommands: b.VerificationCommands,
			Status:               domain.TaskPending,
			WorkspaceID:          in.WorkspaceID,
		}
		created, err := e.store.Tasks().Create(ctx, task)
		if err != nil {
			return fail(err)
		}
		taskIDs = append(taskIDs, created.ID)
	}
	return ok(map[string]any{"noteId": n.ID, "taskIds": taskIDs})
}

// ConvertTaskBlocksInput is convert_task_blocks's payload.
type ConvertTaskBlocksInput struct {
	WorkspaceID string `json:"workspaceId"`
	NoteID      string `json:"noteId"`
}

// ConvertTaskBlocks manually re-runs @@@task block conversion over an
// existing note's current content, without requiring a content rewrite
// (spec §4.5 "manual conversion").
func (e *Endpoint) ConvertTaskBlocks(ctx context.Context, in ConvertTaskBlocksInput) Result {
	n, err := e.store.Notes().Get(ctx, in.WorkspaceID, in.NoteID)
	if err != nil {
		return fail(err)
	}
	blocks := parseTaskBlocks(n.Content)
	var taskIDs []string
	for _, b := range blocks {
		task := domain.Task{
			ID:                   uuid.NewString(),
			Title:                b.Title,
			Objective:            b.Objective,
			Scope:                b.Scope,
			AcceptanceCriteria:   b.AcceptanceCriteria,
			VerificationCommands: b.VerificationCommands,
			Status:               domain.TaskPending,
			WorkspaceID:          in.WorkspaceID,
		}
		created, err := e.store.Tasks().Create(ctx, task)
		if err != nil {
			return fail(err)
		}
		taskIDs = append(taskIDs, created.ID)
	}
	return ok(map[string]any{"taskIds": taskIDs})
}

// taskBlock is one `@@@task ... @@@` block parsed out of a note's content.
type taskBlock struct {
	Title                string
	Objective            string
	Scope                string
	AcceptanceCriteria   []string
	VerificationCommands []string
}

// parseTaskBlocks scans content for `@@@task` ... `@@@` delimited blocks.
// Within a block, a leading `# ...` line is the title; `## Objective`,
// `## Scope`, `## Acceptance Criteria`, and `## Verification Commands`
// subsections carry the remaining fields, with the latter two read as
// `- item` bullet lists.
func parseTaskBlocks(content string) []taskBlock {
	var blocks []taskBlock
	lines := strings.Split(content, "\n")
	inBlock := false
	var cur []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inBlock && trimmed == "@@@task":
			inBlock = true
			cur = nil
		case inBlock && trimmed == "@@@":
			inBlock = false
			blocks = append(blocks, parseOneTaskBlock(cur))
		case inBlock:
			cur = append(cur, line)
		}
	}
	return blocks
}

func parseOneTaskBlock(lines []string) taskBlock {
	var b taskBlock
	var section string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "# "):
			b.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			section = ""
		case strings.HasPrefix(trimmed, "## "):
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")))
		case strings.HasPrefix(trimmed, "- "):
			item := strings.TrimSpace(strings.TrimPrefix(trimmed, "- "))
			switch section {
			case "acceptance criteria":
				b.AcceptanceCriteria = append(b.AcceptanceCriteria, item)
			case "verification commands":
				b.VerificationCommands = append(b.VerificationCommands, item)
			case "objective":
				b.Objective = appendLine(b.Objective, item)
			case "scope":
				b.Scope = appendLine(b.Scope, item)
			}
		case trimmed != "":
			switch section {
			case "objective":
				b.Objective = appendLine(b.Objective, trimmed)
			case "scope":
				b.Scope = appendLine(b.Scope, trimmed)
			}
		}
	}
	return b
}

func appendLine(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
