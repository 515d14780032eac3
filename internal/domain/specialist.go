package domain

// SpecialistSource identifies where a Specialist definition was resolved
// from. Resolution priority is database-user > file-user > file-bundled >
// hardcoded (see internal/specialists).
type SpecialistSource string

const (
	SourceUser     SpecialistSource = "user"
	SourceBundled  SpecialistSource = "bundled"
	SourceHardcoded SpecialistSource = "hardcoded"
)

// Specialist is a reusable agent persona: role, default model tier, and the
// prompt fragments the Orchestrator composes into a child's initial prompt.
type Specialist struct {
	ID               string
	Name             string
	Description      string
	Role             Role
	DefaultModelTier ModelTier
	SystemPrompt     string
	RoleReminder     string
	Model            string
	Enabled          bool
	Source           SpecialistSource
}
