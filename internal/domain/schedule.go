package domain

// ScheduleDefinition binds a cron expression to a recurring BackgroundTask
// dispatch (spec's schedule trigger source, §4.6/§4.7).
type ScheduleDefinition struct {
	ID          string
	Name        string
	CronExpr    string
	Prompt      string
	Specialist  string
	WorkspaceID string
	Priority    Priority
	Enabled     bool
}
