// Package tools implements the Tool Endpoint (spec §4.5): the set of
// callbacks a child or coordinator agent invokes mid-turn (through its
// provider's tool-calling mechanism) to create and inspect tasks, read and
// write notes, delegate work, and report back to its parent.
//
// Grounded on runtime/agent/tools (Ident/ToolSpec shape, simplified here
// since SPEC_FULL.md's endpoint has no code-generated schema layer) and
// runtime/toolregistry/executor's client-calls-through-a-gateway pattern,
// adapted to in-process dispatch: every tool is a plain Go method on
// Endpoint returning a Result envelope rather than a registry lookup over
// RPC.
package tools

import (
	"context"

	"github.com/fleetctl/core/internal/bridge"
	"github.com/fleetctl/core/internal/orchestrator"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/telemetry"
)

// Result is the envelope every tool returns (spec §4.5 "{success, data?,
// error?}").
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(data any) Result        { return Result{Success: true, Data: data} }
func fail(err error) Result     { return Result{Success: false, Error: err.Error()} }
func failMsg(msg string) Result { return Result{Success: false, Error: msg} }

// Delegator is the slice of the Delegation Orchestrator the Tool Endpoint
// needs: forward delegate_task_to_agent, and notify completion handling
// once report_to_parent has persisted a report. Defined here (the
// consumer) so tests can substitute a fake rather than construct a real
// Orchestrator.
type Delegator interface {
	DelegateTaskWithSpawn(ctx context.Context, req orchestrator.DelegateRequest) (orchestrator.DelegateResult, error)
	HandleReportSubmitted(ctx context.Context, childAgentID string, report orchestrator.Report)
}

// Endpoint implements every tool in spec §4.5. It is the single place
// that both receives in-turn tool calls from agents and satisfies
// orchestrator.ReportSink, since report_to_parent's logic is identical
// whether invoked by an explicit tool call or synthesized by the
// Orchestrator's auto-report / file-watcher fallbacks.
type Endpoint struct {
	store     store.Facade
	delegator Delegator
	bridge    *bridge.Bridge
	log       telemetry.Logger
}

// Config bundles Endpoint's collaborators for New.
type Config struct {
	Store     store.Facade
	Delegator Delegator
	Bridge    *bridge.Bridge
	Log       telemetry.Logger
}

// New builds an Endpoint. Delegator is almost always a *orchestrator.Orchestrator;
// cmd/server wires SetReportSink back onto it once both are constructed.
func New(cfg Config) *Endpoint {
	log := cfg.Log
	if log == nil {
		log, _, _ = telemetry.Noop()
	}
	return &Endpoint{store: cfg.Store, delegator: cfg.Delegator, bridge: cfg.Bridge, log: log}
}

var _ orchestrator.ReportSink = (*Endpoint)(nil)
