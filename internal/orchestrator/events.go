package orchestrator

import "github.com/fleetctl/core/internal/bridge"

func taskAssignedEvent(childAgentID, taskID string) bridge.Event {
	return bridge.Event{Kind: bridge.KindTaskAssigned, ChildAgentID: childAgentID, TaskID: taskID}
}

func agentErrorEvent(childAgentID, taskID, message string) bridge.Event {
	return bridge.Event{Kind: bridge.KindAgentError, ChildAgentID: childAgentID, TaskID: taskID, Message: message}
}

func reportSubmittedEvent(childAgentID, taskID string) bridge.Event {
	return bridge.Event{Kind: bridge.KindReportSubmitted, ChildAgentID: childAgentID, TaskID: taskID}
}

func taskCompletionEvent(childAgentID, taskID, message string) bridge.Event {
	return bridge.Event{Kind: bridge.KindTaskCompletion, ChildAgentID: childAgentID, TaskID: taskID, Message: message}
}
