package orchestrator

import (
	"context"
	"time"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/bridge"
)

// onChildUpdate is installed as a child session's NotificationHandler at
// spawn time (delegate.go step 8). It normalizes the update on the child's
// own Bridge stream and forwards the raw update to the parent's stream
// tagged with the child's identity. It does not look for terminal
// ("completed"/"ended") updates: the auto-report path starts when the
// child's prompt resolves (delegate.go step 10), not from here.
func (o *Orchestrator) onChildUpdate(childAgentID, childSessionID string, n adapter.Notification) {
	o.mu.Lock()
	rec := o.children[childAgentID]
	o.mu.Unlock()
	if rec == nil {
		return
	}

	if o.bridge != nil {
		o.bridge.HandleNotification(context.Background(), childSessionID, n)
		o.bridge.Publish(context.Background(), rec.ParentSessionID, bridge.Event{
			Kind:           bridge.KindChildUpdate,
			ChildAgentID:   childAgentID,
			ChildSessionID: childSessionID,
			Raw:            n.Params,
		})
	}
}

// autoReportIfNeeded is called once a child's prompt resolves (delegate.go
// step 10's success path). If the child already completed via an explicit
// report_to_parent call, reported[childAgentID] is already true and this is
// a no-op. Otherwise it waits AutoReportSettleDelay and, if still
// unreported, synthesizes a success report through the ReportSink exactly
// as if report_to_parent had been called (spec §4.4 "Auto-report
// fallback").
func (o *Orchestrator) autoReportIfNeeded(ctx context.Context, childAgentID string) {
	time.Sleep(AutoReportSettleDelay)

	o.mu.Lock()
	rec, ok := o.children[childAgentID]
	already := o.reported[childAgentID]
	o.mu.Unlock()
	if !ok || already {
		return
	}

	if o.reports == nil {
		o.log.Warn(ctx, "orchestrator: no report sink wired, cannot auto-report", "agent_id", childAgentID)
		return
	}
	report := Report{
		TaskID:  rec.TaskID,
		Summary: "Agent completed its work (auto-reported by orchestrator).",
		Success: true,
	}
	if err := o.reports.ReportToParent(ctx, childAgentID, report); err != nil {
		o.log.Error(ctx, "orchestrator: auto-report failed", "agent_id", childAgentID, "err", err)
	}
}

// HandleReportSubmitted is the Orchestrator's half of the report_to_parent
// path (spec §4.4 "Report reception"): internal/tools calls this after
// persisting the report. It publishes REPORT_SUBMITTED on the parent's
// stream and runs completion handling, regardless of whether the report
// came from an explicit tool call, the auto-report timer, or the
// file-watcher fallback.
func (o *Orchestrator) HandleReportSubmitted(ctx context.Context, childAgentID string, report Report) {
	o.mu.Lock()
	rec, ok := o.children[childAgentID]
	o.reported[childAgentID] = true
	o.mu.Unlock()
	if !ok {
		o.log.Warn(ctx, "orchestrator: report for unknown child agent", "agent_id", childAgentID)
		return
	}
	if o.bridge != nil {
		o.bridge.Publish(ctx, rec.ParentSessionID, reportSubmittedEvent(childAgentID, rec.TaskID))
	}
	o.handleChildCompletion(ctx, childAgentID, rec, report)
}
