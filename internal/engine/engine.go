// Package engine abstracts workflow-group execution for the Background
// Task Engine's step DAG executor, so the same group-sequencing logic can
// run locally (internal/engine/inmem, goroutine-backed) or durably
// (internal/engine/temporal), without the Background Task Engine itself
// depending on either backend.
//
// Grounded on runtime/agent/engine.Engine's pluggability contract, trimmed
// to the one operation our DAG executor needs: run a sequence of step
// groups, where steps within a group execute concurrently and groups
// execute in order. The teacher's richer Workflow/Activity/Signal surface
// (built for arbitrary deterministic-replay workflows) has no use here —
// SPEC_FULL.md's workflow steps are already fully described as data
// (BackgroundTask rows with a dependency DAG), so there is nothing for a
// workflow function to decide at runtime.
package engine

import "context"

// StepRequest is one step's materialized unit of work, already resolved
// into a concrete task id before the engine is asked to run it.
type StepRequest struct {
	WorkflowRunID string
	StepName      string
	TaskID        string
}

// StepResult carries back what a step produced.
type StepResult struct {
	Output string
	Failed bool
	Err    error
}

// StepFunc executes a single step's BackgroundTask to completion (spawning
// the specialist's session, waiting for its terminal status) and reports
// the result. Supplied by internal/background; engines only sequence calls
// to it.
type StepFunc func(ctx context.Context, req StepRequest) StepResult

// Engine runs one workflow run's step groups: groups execute in order,
// steps within a group execute concurrently. Every step of a group runs to
// the end; no later group starts once a group contains a failed step.
type Engine interface {
	// RunGroups executes groups in order. Each element of groups is a slice
	// of steps belonging to the same parallel_group (or a single step with
	// no group). Returns the results for every step, in group-major,
	// step-minor order, or an error if execution could not be scheduled at
	// all (as opposed to an individual step failing, which is reported via
	// StepResult.Failed).
	RunGroups(ctx context.Context, groups [][]StepRequest, exec StepFunc) ([]StepResult, error)
}
