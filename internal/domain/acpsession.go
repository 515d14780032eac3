package domain

import (
	"encoding/json"
	"time"
)

// RawUpdate is an unnormalized provider update, persisted verbatim in an
// ACPSession's message history for cold-start replay and debugging.
type RawUpdate struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ACPSession is the durable representation of an Agent Adapter session,
// persisted so the Agent Session Manager can reconstruct an adapter after a
// process restart (cold-start recovery).
type ACPSession struct {
	ID             string
	Name           string
	Cwd            string
	WorkspaceID    string
	RoutaAgentID   string
	Provider       string
	Role           string
	ModeID         string
	Model          string
	FirstPromptSent bool
	MessageHistory []RawUpdate
	LastEventSeq   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
