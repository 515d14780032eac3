package domain

import "time"

// BackgroundTaskStatus is the lifecycle state of a BackgroundTask.
type BackgroundTaskStatus string

const (
	BackgroundPending   BackgroundTaskStatus = "PENDING"
	BackgroundRunning   BackgroundTaskStatus = "RUNNING"
	BackgroundCompleted BackgroundTaskStatus = "COMPLETED"
	BackgroundFailed    BackgroundTaskStatus = "FAILED"
	BackgroundCancelled BackgroundTaskStatus = "CANCELLED"
)

// TriggerSource identifies what caused a BackgroundTask or WorkflowRun to be
// created.
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerSchedule TriggerSource = "schedule"
	TriggerWebhook  TriggerSource = "webhook"
	TriggerFleet    TriggerSource = "fleet"
	TriggerPolling  TriggerSource = "polling"
	TriggerWorkflow TriggerSource = "workflow"
)

// Priority orders BackgroundTask selection: lower values drain first.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

// BackgroundTask is a detached, queued agent invocation with no attached
// client stream. A RUNNING task without ResultSessionID for longer than the
// configured orphan threshold is reclaimed by the engine.
type BackgroundTask struct {
	ID               string
	Title            string
	Prompt           string
	AgentID          string
	Specialist       string
	Provider         string
	Cwd              string
	WorkspaceID      string
	Status           BackgroundTaskStatus
	TriggeredBy      string
	TriggerSource    TriggerSource
	Priority         Priority
	ResultSessionID  string
	ErrorMessage     string
	Attempts         int
	MaxAttempts      int
	LastActivity     time.Time
	CurrentActivity  string
	ToolCallCount    int
	InputTokens      int
	OutputTokens     int
	WorkflowRunID    string
	WorkflowStepName string
	DependsOnTaskIDs []string
	TaskOutput       string
	CreatedAt        time.Time
	StartedAt        time.Time
	CompletedAt      time.Time
	UpdatedAt        time.Time
}

// Ready reports whether the task may be reserved: it is PENDING and every
// dependency has completed.
func (t *BackgroundTask) Ready(depStatuses map[string]BackgroundTaskStatus) bool {
	if t.Status != BackgroundPending {
		return false
	}
	for _, dep := range t.DependsOnTaskIDs {
		if depStatuses[dep] != BackgroundCompleted {
			return false
		}
	}
	return true
}

// Orphaned reports whether a RUNNING task with no ResultSessionID has been
// running longer than threshold, relative to now.
func (t *BackgroundTask) Orphaned(now time.Time, threshold time.Duration) bool {
	if t.Status != BackgroundRunning || t.ResultSessionID != "" {
		return false
	}
	return now.Sub(t.StartedAt) > threshold
}
