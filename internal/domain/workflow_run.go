package domain

import "time"

// WorkflowRunStatus is the lifecycle state of a WorkflowRun.
type WorkflowRunStatus string

const (
	WorkflowRunPending   WorkflowRunStatus = "PENDING"
	WorkflowRunRunning   WorkflowRunStatus = "RUNNING"
	WorkflowRunCompleted WorkflowRunStatus = "COMPLETED"
	WorkflowRunFailed    WorkflowRunStatus = "FAILED"
)

// WorkflowRun tracks one execution of a WorkflowDefinition's step DAG.
// CompletedSteps never exceeds TotalSteps, and a terminal Status forbids
// further mutation.
type WorkflowRun struct {
	ID              string
	WorkflowID      string
	WorkflowName    string
	WorkflowVersion string
	WorkspaceID     string
	Status          WorkflowRunStatus
	TriggerSource   TriggerSource
	TriggerPayload  string
	CurrentStepName string
	StepOutputs     map[string]string
	TotalSteps      int
	CompletedSteps  int
	StartedAt       time.Time
	CompletedAt     time.Time
	ErrorMessage    string
}

// Terminal reports whether the run has reached COMPLETED or FAILED.
func (r *WorkflowRun) Terminal() bool {
	return r.Status == WorkflowRunCompleted || r.Status == WorkflowRunFailed
}
