package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/fleetctl/core/internal/adapter"
)

// Normalizer maps one raw provider notification to zero or more normalized
// Events. Implementations must be stateless with respect to ordering; the
// per-session sequence counter lives in the Bridge's sessionState
// (bridge.go), not here.
type Normalizer interface {
	Normalize(sessionID string, n adapter.Notification) ([]Event, error)
}

// rawUpdate is the "session/update" wire shape ACPNormalizer decodes: a
// single discriminated union keyed by sessionUpdate, nested under "update"
// in the notification params. SubprocessJSONRPC passes its provider's
// params through unchanged and InProcessSDK's PromptFunc publishes them
// directly, so both reach the Bridge in this shape when the provider emits
// it. SubprocessStreamJSON forwards each provider event ({"type":...,
// "subtype":...}) as the params with no "update" object; ACPNormalizer,
// the only Normalizer implementation, turns those into no events.
type rawUpdate struct {
	SessionUpdate string          `json:"sessionUpdate"`
	Text          string          `json:"text,omitempty"`
	ToolCallID    string          `json:"toolCallId,omitempty"`
	ToolName      string          `json:"toolName,omitempty"`
	ToolArgs      json.RawMessage `json:"toolArgs,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	IsError       bool            `json:"isError,omitempty"`
	StopReason    string          `json:"stopReason,omitempty"`
	Message       string          `json:"message,omitempty"`
	ModeID        string          `json:"modeId,omitempty"`
}

type rawUpdateParams struct {
	Update rawUpdate `json:"update"`
}

// ACPNormalizer translates the Agent Client Protocol-style sessionUpdate
// discriminated union into AgentEvents.
//
// sessionUpdate values recognized: "started", "agent_thought_chunk",
// "agent_message_chunk", "tool_call", "tool_call_progress", "tool_call_end",
// "completed", "ended", "error", "mode_changed". Unrecognized values
// normalize to no events rather than an error, so a provider adding a new
// sessionUpdate kind doesn't break existing sessions.
type ACPNormalizer struct{}

func (ACPNormalizer) Normalize(sessionID string, n adapter.Notification) ([]Event, error) {
	if n.Method != "session/update" {
		return nil, nil
	}
	var params rawUpdateParams
	if err := json.Unmarshal(n.Params, &params); err != nil {
		return nil, fmt.Errorf("bridge: malformed session/update params: %w", err)
	}
	u := params.Update
	switch u.SessionUpdate {
	case "started":
		return []Event{{Kind: KindStarted, SessionID: sessionID}}, nil
	case "agent_thought_chunk":
		return []Event{{Kind: KindThought, SessionID: sessionID, Text: u.Text}}, nil
	case "agent_message_chunk":
		return []Event{{Kind: KindOutputChunk, SessionID: sessionID, Text: u.Text}}, nil
	case "tool_call":
		return []Event{{Kind: KindToolCallStarted, SessionID: sessionID, ToolCallID: u.ToolCallID, ToolName: u.ToolName, ToolArgs: u.ToolArgs}}, nil
	case "tool_call_progress":
		return []Event{{Kind: KindToolCallProgress, SessionID: sessionID, ToolCallID: u.ToolCallID, Partial: u.Content}}, nil
	case "tool_call_end":
		return []Event{{Kind: KindToolCallEnded, SessionID: sessionID, ToolCallID: u.ToolCallID, Result: u.Content, IsError: u.IsError}}, nil
	case "completed", "ended":
		return []Event{{Kind: KindCompleted, SessionID: sessionID, StopReason: u.StopReason}}, nil
	case "error":
		return []Event{{Kind: KindError, SessionID: sessionID, Message: u.Message}}, nil
	case "mode_changed":
		return []Event{{Kind: KindModeChanged, SessionID: sessionID, ModeID: u.ModeID}}, nil
	default:
		return nil, nil
	}
}

// IsTerminalUpdate reports whether a raw session/update notification carries
// one of the two end-of-turn sessionUpdate values, "completed" or "ended".
func IsTerminalUpdate(n adapter.Notification) bool {
	if n.Method != "session/update" {
		return false
	}
	var params rawUpdateParams
	if err := json.Unmarshal(n.Params, &params); err != nil {
		return false
	}
	return params.Update.SessionUpdate == "completed" || params.Update.SessionUpdate == "ended"
}
