package tools

import (
	"context"

	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/orchestrator"
)

// DelegateTaskToAgentInput is delegate_task_to_agent's payload (spec §4.5).
type DelegateTaskToAgentInput struct {
	TaskID                 string          `json:"taskId"`
	Specialist             string          `json:"specialist"`
	WaitMode               domain.WaitMode `json:"waitMode,omitempty"`
	AdditionalInstructions string          `json:"additionalInstructions,omitempty"`
	Provider               string          `json:"provider,omitempty"`
	Cwd                    string          `json:"cwd,omitempty"`
	CallerAgentID          string          `json:"callerAgentId"`
	CallerSessionID        string          `json:"callerSessionId"`
	WorkspaceID            string          `json:"workspaceId"`
}

// DelegateTaskToAgent forwards a delegation request straight to the
// Orchestrator, which owns the full spawn/track/wake lifecycle.
func (e *Endpoint) DelegateTaskToAgent(ctx context.Context, in DelegateTaskToAgentInput) Result {
	if in.CallerAgentID == "" || in.TaskID == "" || in.Specialist == "" {
		return failMsg("callerAgentId, taskId, and specialist are required")
	}
	res, err := e.delegator.DelegateTaskWithSpawn(ctx, orchestrator.DelegateRequest{
		TaskID:                 in.TaskID,
		CallerAgentID:          in.CallerAgentID,
		CallerSessionID:        in.CallerSessionID,
		WorkspaceID:            in.WorkspaceID,
		Specialist:             in.Specialist,
		Provider:               in.Provider,
		Cwd:                    in.Cwd,
		AdditionalInstructions: in.AdditionalInstructions,
		WaitMode:               in.WaitMode,
	})
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

// ReportToParentInput is report_to_parent's payload (spec §4.5).
type ReportToParentInput struct {
	AgentID string       `json:"agentId"`
	Report  ReportDetail `json:"report"`
}

// ReportDetail mirrors orchestrator.Report's wire shape.
type ReportDetail struct {
	TaskID              string   `json:"taskId"`
	Summary             string   `json:"summary"`
	FilesModified       []string `json:"filesModified,omitempty"`
	VerificationResults string   `json:"verificationResults,omitempty"`
	Success             bool     `json:"success"`
}

// ReportToParentTool is the tool-calling entry point for report_to_parent;
// it validates input, then delegates to ReportToParent, which also
// satisfies orchestrator.ReportSink so the Orchestrator's auto-report and
// file-watcher fallbacks can call the identical path.
func (e *Endpoint) ReportToParentTool(ctx context.Context, in ReportToParentInput) Result {
	if in.AgentID == "" || in.Report.TaskID == "" {
		return failMsg("agentId and report.taskId are required")
	}
	if err := e.ReportToParent(ctx, in.AgentID, orchestrator.Report{
		TaskID:              in.Report.TaskID,
		Summary:             in.Report.Summary,
		FilesModified:       in.Report.FilesModified,
		VerificationResults: in.Report.VerificationResults,
		Success:             in.Report.Success,
	}); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// ReportToParent persists the report onto its task, updates the reporting
// agent's status, emits REPORT_SUBMITTED, and hands off to the
// Orchestrator's completion handling — exactly spec §4.5's
// report_to_parent side effects, reused verbatim by the Orchestrator's
// auto-report settlement timer and file-watcher fallback (spec §4.4), both
// of which call through this same method as orchestrator.ReportSink.
func (e *Endpoint) ReportToParent(ctx context.Context, agentID string, report orchestrator.Report) error {
	agent, err := e.store.Agents().Get(ctx, agentID)
	if err != nil {
		return apierr.Wrap(apierr.KindToolExecutionFailed, "look up reporting agent", err)
	}

	task, err := e.store.Tasks().Get(ctx, report.TaskID)
	if err != nil {
		return apierr.Wrap(apierr.KindToolExecutionFailed, "look up reported task", err)
	}
	verdict := domain.VerdictApproved
	if !report.Success {
		verdict = domain.VerdictNotApproved
	}
	if _, err := e.store.Tasks().AtomicUpdate(ctx, task.ID, task.Version, func(t *domain.Task) {
		t.CompletionSummary = report.Summary
		t.VerificationReport = report.VerificationResults
		t.VerificationVerdict = verdict
		if report.Success {
			t.Status = domain.TaskCompleted
		} else {
			t.Status = domain.TaskNeedsFix
		}
	}); err != nil {
		return apierr.Wrap(apierr.KindToolExecutionFailed, "persist report onto task", err)
	}

	agent.Status = domain.AgentCompleted
	if !report.Success {
		agent.Status = domain.AgentError
	}
	if err := e.store.Agents().Update(ctx, agent); err != nil {
		return apierr.Wrap(apierr.KindToolExecutionFailed, "update reporting agent status", err)
	}

	// REPORT_SUBMITTED is published by the Orchestrator's HandleReportSubmitted
	// (it knows the parent's session id from the ChildAgentRecord), not here.
	e.delegator.HandleReportSubmitted(ctx, agentID, report)
	return nil
}
