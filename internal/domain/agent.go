package domain

import "time"

// Role identifies an agent's function within a delegation tree.
type Role string

const (
	// RoleCoordinator plans and delegates; it never implements directly once
	// it has children it can delegate to.
	RoleCoordinator Role = "ROUTA"
	// RoleCrafter implements a delegated task.
	RoleCrafter Role = "CRAFTER"
	// RoleGate verifies a delegated task's output.
	RoleGate Role = "GATE"
	// RoleDeveloper both plans and implements within a single agent.
	RoleDeveloper Role = "DEVELOPER"
)

// ModelTier selects the provider/model cost-capability tradeoff for an
// agent's session.
type ModelTier string

const (
	ModelTierFast     ModelTier = "FAST"
	ModelTierBalanced ModelTier = "BALANCED"
	ModelTierSmart    ModelTier = "SMART"
)

// AgentStatus is the lifecycle state of an Agent record.
type AgentStatus string

const (
	AgentPending   AgentStatus = "PENDING"
	AgentActive    AgentStatus = "ACTIVE"
	AgentCompleted AgentStatus = "COMPLETED"
	AgentError     AgentStatus = "ERROR"
)

// Metadata keys carried in Agent.Metadata. delegationDepth is string-encoded
// so it round-trips through untyped metadata stores without type coercion.
const (
	MetaDelegationDepth = "delegationDepth"
	MetaCreatedByAgent  = "createdByAgentId"
	MetaSpecialist      = "specialist"
)

// Agent is a spawned or coordinator agent within a workspace. Child/parent
// relationships form a delegation tree capped at MaxDelegationDepth.
type Agent struct {
	ID          string
	Name        string
	Role        Role
	ModelTier   ModelTier
	WorkspaceID string
	ParentID    string
	Status      AgentStatus
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
