package domain

// WaitMode controls whether a parent is woken as soon as a single delegated
// child completes, or only once every child in its group has completed.
type WaitMode string

const (
	WaitImmediate WaitMode = "immediate"
	WaitAfterAll  WaitMode = "after_all"
)

// DelegationGroup tracks an in-flight "after_all" cohort of children
// delegated by the same parent agent. It lives only in the Orchestrator's
// in-process memory (never persisted) and is deleted once every child has
// completed.
type DelegationGroup struct {
	GroupID           string
	ParentAgentID     string
	ParentSessionID   string
	ChildAgentIDs     []string
	CompletedAgentIDs map[string]bool
}

// Done reports whether every child in the group has completed.
func (g *DelegationGroup) Done() bool {
	return len(g.CompletedAgentIDs) >= len(g.ChildAgentIDs)
}

// ChildAgentRecord links a spawned child session back to its parent and the
// task it was delegated to implement. Like DelegationGroup, it is in-process
// only: the Orchestrator owns it and releases it when the child's adapter is
// killed.
type ChildAgentRecord struct {
	AgentID         string
	SessionID       string
	ParentAgentID   string
	ParentSessionID string
	TaskID          string
	Role            Role
	Provider        string
}
