// Package temporal adapts engine.Engine onto the Temporal SDK for durable
// workflow-group execution, for deployments that need a workflow run to
// survive process restarts. Grounded on
// runtime/agent/engine/temporal/engine.go's client/worker wiring, trimmed
// to the one workflow our DAG executor needs (run step groups in order,
// steps within a group concurrently) rather than the teacher's generic
// arbitrary-workflow registration surface.
package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/fleetctl/core/internal/engine"
)

const (
	// WorkflowName is the single registered workflow every run executes.
	WorkflowName = "BackgroundTaskDAG"
	// StepActivityName is the single registered activity every step runs
	// through; the activity body is supplied at RunGroups time via a
	// process-local registry keyed by a per-call run token, since Temporal activities
	// must be registered before the worker starts but our StepFunc is only
	// known per-call.
	StepActivityName = "ExecuteStep"
)

// Options configures the Temporal engine adapter.
type Options struct {
	// Client is a pre-configured Temporal client. Required.
	Client client.Client
	// TaskQueue is the queue the worker polls and workflows are started on.
	TaskQueue string
}

type eng struct {
	client    client.Client
	taskQueue string
	worker    worker.Worker
	steps     *stepRegistry
}

// New builds a Temporal-backed Engine and starts a worker on opts.TaskQueue
// registered for WorkflowName/StepActivityName. The caller owns opts.Client's
// lifecycle (Close it on shutdown); New does not take ownership.
func New(opts Options) (engine.Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("temporal engine: Client is required")
	}
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: TaskQueue is required")
	}
	e := &eng{client: opts.Client, taskQueue: opts.TaskQueue, steps: newStepRegistry()}
	w := worker.New(opts.Client, opts.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(e.runDAG, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(e.steps.invoke, activityRegisterOptions(StepActivityName))
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("start temporal worker: %w", err)
	}
	e.worker = w
	return e, nil
}

// Close stops the underlying worker.
func (e *eng) Close() {
	if e.worker != nil {
		e.worker.Stop()
	}
}

// dagInput is the serializable payload passed into the durable workflow.
type dagInput struct {
	RunToken string
	Groups   [][]engine.StepRequest
}

func (e *eng) RunGroups(ctx context.Context, groups [][]engine.StepRequest, exec engine.StepFunc) ([]engine.StepResult, error) {
	token := e.steps.register(exec)
	defer e.steps.unregister(token)

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		TaskQueue: e.taskQueue,
	}, e.runDAG, dagInput{RunToken: token, Groups: groups})
	if err != nil {
		return nil, fmt.Errorf("start workflow: %w", err)
	}
	var results []engine.StepResult
	if err := run.Get(ctx, &results); err != nil {
		return nil, fmt.Errorf("await workflow: %w", err)
	}
	return results, nil
}

// runDAG is the durable workflow body: groups execute in order, steps
// within a group execute concurrently as one workflow.ExecuteActivity call
// each, all started before any is awaited, each invoking
// StepActivityName. Workflow code must stay deterministic, so the actual
// StepFunc runs inside the activity (in-process, non-deterministic side
// effects are fine there), looked up from the run-scoped stepRegistry by
// RunToken.
func (e *eng) runDAG(ctx workflow.Context, in dagInput) ([]engine.StepResult, error) {
	ao := workflow.ActivityOptions{StartToCloseTimeout: 0}
	actx := workflow.WithActivityOptions(ctx, ao)

	var all []engine.StepResult
	for _, group := range in.Groups {
		results := make([]engine.StepResult, len(group))
		futures := make([]workflow.Future, len(group))
		for i, step := range group {
			futures[i] = workflow.ExecuteActivity(actx, StepActivityName, in.RunToken, step)
		}
		for i, f := range futures {
			if err := f.Get(ctx, &results[i]); err != nil {
				results[i] = engine.StepResult{Failed: true, Err: err}
			}
		}
		all = append(all, results...)
		for _, r := range results {
			if r.Failed {
				return all, nil
			}
		}
	}
	return all, nil
}
