package tools

import (
	"context"
	"time"

	"github.com/fleetctl/core/internal/domain"
)

// ListAgentsInput is list_agents's payload.
type ListAgentsInput struct {
	WorkspaceID string `json:"workspaceId"`
}

// ListAgents returns every agent in a workspace.
func (e *Endpoint) ListAgents(ctx context.Context, in ListAgentsInput) Result {
	agents, err := e.store.Agents().ListByWorkspace(ctx, in.WorkspaceID)
	if err != nil {
		return fail(err)
	}
	return ok(agents)
}

// GetAgentStatusInput is get_agent_status's payload.
type GetAgentStatusInput struct {
	AgentID string `json:"agentId"`
}

// GetAgentStatus returns a single agent's current record.
func (e *Endpoint) GetAgentStatus(ctx context.Context, in GetAgentStatusInput) Result {
	agent, err := e.store.Agents().Get(ctx, in.AgentID)
	if err != nil {
		return fail(err)
	}
	return ok(agent)
}

// ReadAgentConversationInput is read_agent_conversation's payload.
type ReadAgentConversationInput struct {
	AgentID string `json:"agentId"`
	Limit   int    `json:"limit,omitempty"`
}

const defaultConversationLimit = 50

// ReadAgentConversation returns the last N messages in an agent's
// transcript, oldest first by Timestamp (the store's ListByAgent order; the
// Turn field is not consulted).
func (e *Endpoint) ReadAgentConversation(ctx context.Context, in ReadAgentConversationInput) Result {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	msgs, err := e.store.Messages().ListByAgent(ctx, in.AgentID, limit)
	if err != nil {
		return fail(err)
	}
	return ok(msgs)
}

// SendMessageToAgentInput is send_message_to_agent's payload.
type SendMessageToAgentInput struct {
	AgentID string `json:"agentId"`
	Content string `json:"content"`
}

// SendMessageToAgent appends a user-role message to the target agent's
// transcript. Delivering it into the agent's live session is the Agent
// Session Manager's concern (via its own Prompt call); this tool only
// records the coordination message so read_agent_conversation reflects it.
func (e *Endpoint) SendMessageToAgent(ctx context.Context, in SendMessageToAgentInput) Result {
	if in.AgentID == "" || in.Content == "" {
		return failMsg("agentId and content are required")
	}
	msg := domain.Message{
		AgentID:   in.AgentID,
		Role:      domain.MessageUser,
		Content:   in.Content,
		Timestamp: time.Now(),
	}
	if err := e.store.Messages().Append(ctx, msg); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// SetAgentNameInput is set_agent_name's payload.
type SetAgentNameInput struct {
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
}

// SetAgentName renames an agent's display name.
func (e *Endpoint) SetAgentName(ctx context.Context, in SetAgentNameInput) Result {
	agent, err := e.store.Agents().Get(ctx, in.AgentID)
	if err != nil {
		return fail(err)
	}
	agent.Name = in.Name
	agent.UpdatedAt = time.Now()
	if err := e.store.Agents().Update(ctx, agent); err != nil {
		return fail(err)
	}
	return ok(nil)
}
