// Package bridge implements the Semantic Event Bridge (spec §4.3): it
// normalizes heterogeneous raw provider updates (from internal/adapter) into
// a small, stable AgentEvent vocabulary, preserves per-session ordering, and
// fans events out to subscribers.
//
// Grounded on runtime/agent/stream (Event/Sink/Base envelope, the
// single-writer-per-session ordering contract) and runtime/agent/hooks
// (Bus/Subscriber/fan-out pattern), adapted so a failing subscriber is
// isolated rather than stopping delivery to the rest (spec §4.3's "a
// subscriber that throws is isolated; others continue", unlike the
// teacher's fail-fast hook bus).
package bridge

import "encoding/json"

// Kind enumerates the normalized agent-event vocabulary.
type Kind string

const (
	KindStarted         Kind = "started"
	KindThought         Kind = "thought"
	KindOutputChunk     Kind = "output_chunk"
	KindToolCallStarted Kind = "tool_call_started"
	KindToolCallProgress Kind = "tool_call_progress"
	KindToolCallEnded   Kind = "tool_call_ended"
	KindCompleted       Kind = "completed"
	KindError           Kind = "error"
	KindModeChanged     Kind = "mode_changed"

	// Orchestrator-originated kinds, carried over the same per-session
	// stream as the provider-normalized kinds above (spec §4.4 "send a
	// task_completion synthetic update over the parent's streaming
	// channel"). These are published directly via Bridge.Publish rather
	// than produced by a Normalizer.
	KindTaskAssigned    Kind = "task_assigned"
	KindAgentError      Kind = "agent_error"
	KindReportSubmitted Kind = "report_submitted"
	KindTaskCompletion  Kind = "task_completion"
	// KindChildUpdate wraps a raw update forwarded from a child session
	// onto its parent's stream, tagged with the child's identity (spec
	// §4.4 onChildUpdate).
	KindChildUpdate Kind = "child_update"
)

// Event is one normalized, ordered update for a session. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind      Kind
	SessionID string
	Seq       int64

	// Thought / OutputChunk
	Text string

	// ToolCallStarted / ToolCallProgress / ToolCallEnded
	ToolCallID string
	ToolName   string
	ToolArgs   json.RawMessage
	Partial    json.RawMessage
	Result     json.RawMessage
	IsError    bool

	// Completed
	StopReason string

	// Error
	Message string

	// ModeChanged
	ModeID string

	// TaskAssigned / AgentError / ReportSubmitted / TaskCompletion / ChildUpdate
	ChildAgentID   string
	ChildSessionID string
	TaskID         string
	Raw            json.RawMessage
}

// Handler receives normalized events for a subscribed session, in the
// order they were produced. A Handler must not block indefinitely: the
// bridge delivers synchronously on the normalizing goroutine.
type Handler func(Event)
