package domain

// TaskStatus is the lifecycle state of a Task. Transitions are monotone
// through terminal states except NEEDS_FIX -> IN_PROGRESS, which restarts
// the implementation loop after a failed verification.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskBlocked    TaskStatus = "BLOCKED"
	TaskNeedsFix   TaskStatus = "NEEDS_FIX"
)

// VerificationVerdict is the outcome of a GATE agent's review of a
// completed Task.
type VerificationVerdict string

const (
	VerdictApproved    VerificationVerdict = "APPROVED"
	VerdictNotApproved VerificationVerdict = "NOT_APPROVED"
	VerdictBlocked     VerificationVerdict = "BLOCKED"
)

// Task is a unit of delegable work. Version is incremented on every write
// and is the optimistic-concurrency token for atomicUpdate.
type Task struct {
	ID                   string
	Title                string
	Objective            string
	Scope                string
	AcceptanceCriteria   []string
	VerificationCommands []string
	AssignedTo           string
	Status               TaskStatus
	Dependencies         []string
	ParallelGroup        string
	WorkspaceID          string
	SessionID            string
	CompletionSummary    string
	VerificationVerdict  VerificationVerdict
	VerificationReport   string
	Version              int
}

// monotone reports whether transitioning from `from` to `to` is permitted.
// Terminal states (COMPLETED, BLOCKED) forbid further transitions except
// the explicit NEEDS_FIX -> IN_PROGRESS restart path.
func (s TaskStatus) monotone(to TaskStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case TaskCompleted:
		return false
	case TaskBlocked:
		return false
	case TaskNeedsFix:
		return to == TaskInProgress
	default:
		return true
	}
}

// CanTransition reports whether moving this task from its current status to
// `to` is a legal monotone transition.
func (t *Task) CanTransition(to TaskStatus) bool {
	return t.Status.monotone(to)
}
