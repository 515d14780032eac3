package background

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetctl/core/internal/domain"
	dagengine "github.com/fleetctl/core/internal/engine"
)

// pollInterval is how often the default wait loop checks a step's
// BackgroundTask for a terminal status while driving a WorkflowRun.
const pollInterval = 500 * time.Millisecond

// RunWorkflowRequest starts one execution of a WorkflowDefinition.
type RunWorkflowRequest struct {
	Definition     domain.WorkflowDefinition
	WorkspaceID    string
	TriggerSource  domain.TriggerSource
	TriggerPayload string
}

// RunWorkflow materializes a WorkflowDefinition's steps into
// dependency-linked BackgroundTask rows (spec §4.6): consecutive steps
// sharing a non-empty ParallelGroup become one concurrent group, groups
// execute in order, and every step in a group depends on every task from
// every earlier group. The dagengine.Engine only drives progress tracking
// and barrier waiting between groups; actual task execution still goes
// through the priority+dependency queue (DrainReady), which already will
// not select a task as ready until its dependencies have completed.
func (e *Engine) RunWorkflow(ctx context.Context, req RunWorkflowRequest) (domain.WorkflowRun, error) {
	groups := groupSteps(req.Definition.Steps)

	run := domain.WorkflowRun{
		ID:              uuid.NewString(),
		WorkflowID:      req.Definition.ID,
		WorkflowName:    req.Definition.Name,
		WorkflowVersion: req.Definition.Version,
		WorkspaceID:     req.WorkspaceID,
		Status:          domain.WorkflowRunRunning,
		TriggerSource:   req.TriggerSource,
		TriggerPayload:  req.TriggerPayload,
		StepOutputs:     make(map[string]string),
		TotalSteps:      len(req.Definition.Steps),
		StartedAt:       time.Now(),
	}
	if err := e.store.WorkflowRuns().Create(ctx, run); err != nil {
		return domain.WorkflowRun{}, fmt.Errorf("create workflow run: %w", err)
	}

	stepGroups, _, err := e.materializeTasks(ctx, run, groups, req)
	if err != nil {
		run.Status = domain.WorkflowRunFailed
		run.ErrorMessage = err.Error()
		run.CompletedAt = time.Now()
		_ = e.store.WorkflowRuns().Update(ctx, run)
		return run, err
	}

	exec := func(stepCtx context.Context, step dagengine.StepRequest) dagengine.StepResult {
		return e.awaitStep(stepCtx, step)
	}
	results, err := e.dag.RunGroups(ctx, stepGroups, exec)
	if err != nil {
		run.Status = domain.WorkflowRunFailed
		run.ErrorMessage = err.Error()
		run.CompletedAt = time.Now()
		_ = e.store.WorkflowRuns().Update(ctx, run)
		return run, err
	}

	failed := false
	for i, r := range results {
		stepName := flatStepNames(groups)[i]
		if r.Failed {
			failed = true
			run.ErrorMessage = errString(r.Err)
		} else {
			run.StepOutputs[stepName] = r.Output
		}
		run.CompletedSteps++
		run.CurrentStepName = stepName
	}
	run.CompletedAt = time.Now()
	if failed {
		run.Status = domain.WorkflowRunFailed
	} else {
		run.Status = domain.WorkflowRunCompleted
	}
	if err := e.store.WorkflowRuns().Update(ctx, run); err != nil {
		e.log.Error(ctx, "update workflow run failed", "runId", run.ID, "error", err.Error())
	}
	return run, nil
}

// groupSteps partitions steps into consecutive runs sharing a non-empty
// ParallelGroup; a step with an empty ParallelGroup is its own group of one.
func groupSteps(steps []domain.WorkflowStep) [][]domain.WorkflowStep {
	var groups [][]domain.WorkflowStep
	for _, s := range steps {
		if s.ParallelGroup != "" && len(groups) > 0 {
			last := groups[len(groups)-1]
			if last[0].ParallelGroup == s.ParallelGroup {
				groups[len(groups)-1] = append(last, s)
				continue
			}
		}
		groups = append(groups, []domain.WorkflowStep{s})
	}
	return groups
}

func flatStepNames(groups [][]domain.WorkflowStep) []string {
	var names []string
	for _, g := range groups {
		for _, s := range g {
			names = append(names, s.Name)
		}
	}
	return names
}

// materializeTasks creates one BackgroundTask per step, each depending on
// every task id from every earlier group, and returns the equivalent
// dagengine.StepRequest groups plus a stepName->taskID map.
func (e *Engine) materializeTasks(ctx context.Context, run domain.WorkflowRun, groups [][]domain.WorkflowStep, req RunWorkflowRequest) ([][]dagengine.StepRequest, map[string]string, error) {
	var (
		stepGroups   [][]dagengine.StepRequest
		taskByStep   = make(map[string]string)
		priorTaskIDs []string
	)
	for _, group := range groups {
		var groupTaskIDs []string
		var stepReqs []dagengine.StepRequest
		for _, step := range group {
			prompt := substitute(step.Input, req.Definition.Variables, req.TriggerPayload)
			task, err := e.Enqueue(ctx, domain.BackgroundTask{
				Title:            step.Name,
				Prompt:           prompt,
				Specialist:       step.Specialist,
				WorkspaceID:      req.WorkspaceID,
				TriggerSource:    domain.TriggerWorkflow,
				Priority:         domain.PriorityNormal,
				WorkflowRunID:    run.ID,
				WorkflowStepName: step.Name,
				DependsOnTaskIDs: append([]string{}, priorTaskIDs...),
			})
			if err != nil {
				return nil, nil, fmt.Errorf("enqueue step %q: %w", step.Name, err)
			}
			taskByStep[step.Name] = task.ID
			groupTaskIDs = append(groupTaskIDs, task.ID)
			stepReqs = append(stepReqs, dagengine.StepRequest{WorkflowRunID: run.ID, StepName: step.Name, TaskID: task.ID})
		}
		stepGroups = append(stepGroups, stepReqs)
		priorTaskIDs = append(priorTaskIDs, groupTaskIDs...)
	}
	return stepGroups, taskByStep, nil
}

// awaitStep polls until step's BackgroundTask reaches a terminal status.
// The poll loop (rather than a push notification) keeps this engine-neutral:
// both the in-memory and Temporal dagengine backends call exec the same way.
func (e *Engine) awaitStep(ctx context.Context, step dagengine.StepRequest) dagengine.StepResult {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return dagengine.StepResult{Failed: true, Err: ctx.Err()}
		case <-ticker.C:
			t, err := e.store.BackgroundTasks().Get(ctx, step.TaskID)
			if err != nil {
				return dagengine.StepResult{Failed: true, Err: err}
			}
			switch t.Status {
			case domain.BackgroundCompleted:
				return dagengine.StepResult{Output: t.TaskOutput}
			case domain.BackgroundFailed, domain.BackgroundCancelled:
				return dagengine.StepResult{Failed: true, Err: fmt.Errorf("step %q: %s", step.StepName, t.ErrorMessage)}
			}
		}
	}
}

// substitute resolves ${trigger.payload} and ${variables.X} / ${X} tokens
// in a step's input template (spec §4.6).
func substitute(input string, variables map[string]string, triggerPayload string) string {
	out := strings.ReplaceAll(input, "${trigger.payload}", triggerPayload)
	for k, v := range variables {
		out = strings.ReplaceAll(out, "${variables."+k+"}", v)
		out = strings.ReplaceAll(out, "${"+k+"}", v)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
