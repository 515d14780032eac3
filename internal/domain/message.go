package domain

import "time"

// MessageRole identifies the speaker of a Message in an agent's transcript.
type MessageRole string

const (
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
	MessageTool      MessageRole = "tool"
)

// Message is one append-only entry in an agent's transcript, ordered by
// Timestamp within an agent.
type Message struct {
	ID        string
	AgentID   string
	Role      MessageRole
	Content   string
	Timestamp time.Time
	ToolName  string
	ToolArgs  string
	Turn      int
}
