package domain

import "time"

// WebhookConfig binds a GitHub repository + event filter to a triggering
// agent and prompt template.
type WebhookConfig struct {
	ID              string
	Repo            string
	EventTypes      map[string]bool
	LabelFilter     map[string]bool
	TriggerAgentID  string
	WorkspaceID     string
	WebhookSecret   string
	GitHubToken     string
	PromptTemplate  string
	Enabled         bool
}

// TriggerOutcome records what happened when a webhook/polling event was
// matched against a WebhookConfig.
type TriggerOutcome string

const (
	OutcomeTriggered TriggerOutcome = "triggered"
	OutcomeSkipped   TriggerOutcome = "skipped"
	OutcomeError     TriggerOutcome = "error"
)

// WebhookTriggerLog records the disposition of one inbound event against one
// WebhookConfig, regardless of whether it resulted in a BackgroundTask.
type WebhookTriggerLog struct {
	ConfigID        string
	EventType       string
	EventAction     string
	Payload         string
	BackgroundTaskID string
	SignatureValid  bool
	Outcome         TriggerOutcome
	ErrorMessage    string
	CreatedAt       time.Time
}
