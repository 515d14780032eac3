package tools

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// toolHandler decodes a raw tool-call payload and dispatches to the
// matching Endpoint method.
type toolHandler func(ctx context.Context, e *Endpoint, raw json.RawMessage) Result

// toolTable maps each spec §4.5 tool name (the snake_case name an agent
// provider's tool-calling mechanism sends) to its handler. Built once;
// read-only after init.
var toolTable = map[string]toolHandler{
	"create_task":             decodeAndCall(func(e *Endpoint, ctx context.Context, in CreateTaskInput) Result { return e.CreateTask(ctx, in) }),
	"list_tasks":              decodeAndCall(func(e *Endpoint, ctx context.Context, in ListTasksInput) Result { return e.ListTasks(ctx, in) }),
	"delegate_task_to_agent":  decodeAndCall(func(e *Endpoint, ctx context.Context, in DelegateTaskToAgentInput) Result { return e.DelegateTaskToAgent(ctx, in) }),
	"report_to_parent":        decodeAndCall(func(e *Endpoint, ctx context.Context, in ReportToParentInput) Result { return e.ReportToParentTool(ctx, in) }),
	"create_note":             decodeAndCall(func(e *Endpoint, ctx context.Context, in CreateNoteInput) Result { return e.CreateNote(ctx, in) }),
	"read_note":               decodeAndCall(func(e *Endpoint, ctx context.Context, in ReadNoteInput) Result { return e.ReadNote(ctx, in) }),
	"list_notes":              decodeAndCall(func(e *Endpoint, ctx context.Context, in ListNotesInput) Result { return e.ListNotes(ctx, in) }),
	"set_note_content":        decodeAndCall(func(e *Endpoint, ctx context.Context, in SetNoteContentInput) Result { return e.SetNoteContent(ctx, in) }),
	"convert_task_blocks":     decodeAndCall(func(e *Endpoint, ctx context.Context, in ConvertTaskBlocksInput) Result { return e.ConvertTaskBlocks(ctx, in) }),
	"list_agents":             decodeAndCall(func(e *Endpoint, ctx context.Context, in ListAgentsInput) Result { return e.ListAgents(ctx, in) }),
	"get_agent_status":        decodeAndCall(func(e *Endpoint, ctx context.Context, in GetAgentStatusInput) Result { return e.GetAgentStatus(ctx, in) }),
	"read_agent_conversation": decodeAndCall(func(e *Endpoint, ctx context.Context, in ReadAgentConversationInput) Result { return e.ReadAgentConversation(ctx, in) }),
	"send_message_to_agent":   decodeAndCall(func(e *Endpoint, ctx context.Context, in SendMessageToAgentInput) Result { return e.SendMessageToAgent(ctx, in) }),
	"set_agent_name":          decodeAndCall(func(e *Endpoint, ctx context.Context, in SetAgentNameInput) Result { return e.SetAgentName(ctx, in) }),
}

// decodeAndCall adapts a strongly-typed Endpoint method into a toolHandler,
// so toolTable stays a flat, inspectable name->behavior map instead of a
// set of ad hoc type switches.
func decodeAndCall[T any](call func(*Endpoint, context.Context, T) Result) toolHandler {
	return func(ctx context.Context, e *Endpoint, raw json.RawMessage) Result {
		var in T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return failMsg("TOOL_INVALID_ARGS: " + err.Error())
			}
		}
		return call(e, ctx, in)
	}
}

// Register mounts the Tool Endpoint's callback route: agent providers post
// a tool call's arguments to /tools/{tool} and receive a Result envelope.
// This is the HTTP surface spec.md's "host/port for tool endpoint"
// environment note refers to — the side a child agent's provider process
// calls back into, distinct from the user-facing Client Streaming Gateway.
func (e *Endpoint) Register(r *mux.Router) {
	r.HandleFunc("/tools/{tool}", e.Handle).Methods(http.MethodPost)
}

// Handle dispatches one tool call by name.
func (e *Endpoint) Handle(w http.ResponseWriter, r *http.Request) {
	tool := mux.Vars(r)["tool"]
	handler, ok := toolTable[tool]
	if !ok {
		writeResult(w, http.StatusNotFound, failMsg("TOOL_NOT_AUTHORIZED: unknown tool "+tool))
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && r.ContentLength != 0 {
		writeResult(w, http.StatusBadRequest, failMsg("TOOL_INVALID_ARGS: "+err.Error()))
		return
	}

	res := handler(r.Context(), e, raw)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeResult(w, status, res)
}

func writeResult(w http.ResponseWriter, status int, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}
