// Package domain defines the entity types persisted by the Persistence
// Façade: workspaces, codebases, agents, tasks, notes, messages, ACP
// sessions, background tasks, workflow runs, webhook configuration, and
// specialists. These are plain structs; no entity embeds a live adapter
// handle or any other in-process-only resource (see SPEC_FULL.md §3
// ownership rules) — that state lives in internal/session and
// internal/orchestrator instead.
package domain

import "time"

// WorkspaceStatus is the lifecycle state of a Workspace.
type WorkspaceStatus string

const (
	WorkspaceActive   WorkspaceStatus = "active"
	WorkspaceArchived WorkspaceStatus = "archived"
)

// Workspace is the root tenancy unit. Deleting a workspace cascades to its
// codebases, agents, tasks, notes, and ACP sessions.
type Workspace struct {
	ID        string
	Title     string
	Status    WorkspaceStatus
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CodebaseSourceType identifies where a codebase's contents originate.
type CodebaseSourceType string

const (
	CodebaseSourceLocal  CodebaseSourceType = "local"
	CodebaseSourceGitHub CodebaseSourceType = "github"
)

// Codebase is a working directory bound to a Workspace. At most one codebase
// per workspace may have IsDefault set, and RepoPath must be unique within
// the workspace.
type Codebase struct {
	ID          string
	WorkspaceID string
	RepoPath    string
	Branch      string
	Label       string
	IsDefault   bool
	SourceType  CodebaseSourceType
	SourceURL   string
}
