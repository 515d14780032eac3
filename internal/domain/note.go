package domain

// NoteType classifies a Note's role.
type NoteType string

const (
	NoteTypeSpec    NoteType = "spec"
	NoteTypeTask    NoteType = "task"
	NoteTypeGeneral NoteType = "general"
)

// SpecNoteID is the fixed identifier used for the singleton spec note that
// every workspace auto-creates.
const SpecNoteID = "spec"

// NoteMetadata carries note-kind-specific fields. Custom holds arbitrary
// caller-provided key/value pairs that don't warrant a first-class field.
type NoteMetadata struct {
	Type             NoteType
	TaskStatus       TaskStatus
	AssignedAgentIDs []string
	ParentNoteID     string
	LinkedTaskID     string
	Custom           map[string]string
}

// Note is a persisted document scoped to a workspace and optionally a
// session. Spec notes are special: writing @@@task blocks into their
// content atomically materializes Task rows.
type Note struct {
	ID          string
	WorkspaceID string
	SessionID   string
	Title       string
	Content     string
	Metadata    NoteMetadata
}
