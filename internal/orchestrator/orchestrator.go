// Package orchestrator implements the Delegation Orchestrator (spec §4.4):
// it receives delegation requests forwarded from the Tool Endpoint's
// delegate_task_to_agent tool, spawns child agent sessions against the
// Agent Session Manager, tracks parent/child linkage and "after_all"
// completion groups, and wakes the parent once a child reports or errors.
//
// Grounded on runtime/agent/interrupt/controller.go's signal-channel-style
// non-blocking control primitives (the non-blocking prompt send in
// delegateTaskWithSpawn mirrors its fire-and-forget dispatch) and
// runtime/agent/run's RunID/ParentRunID/ParentToolCallID linkage fields,
// reused as the shape for domain.ChildAgentRecord.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/bridge"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/telemetry"
)

// MaxDelegationDepth is the hard cap on nested delegation, per spec.md §4.4
// step 1.
const MaxDelegationDepth = 2

// AutoReportSettleDelay is how long the Orchestrator waits, after a child's
// prompt resolves without a report, before synthesizing one (spec.md §4.4
// "Auto-report fallback").
const AutoReportSettleDelay = 2 * time.Second

// SessionSpawner is the slice of the Agent Session Manager the Orchestrator
// needs: spawn a child session, prompt it, and kill it during cleanup.
// Defined here (the consumer) rather than imported from internal/session so
// tests can substitute a fake.
type SessionSpawner interface {
	CreateSession(ctx context.Context, sessionID, provider, workspaceID, cwd string, handler adapter.NotificationHandler, opts adapter.SessionOptions) (string, error)
	Prompt(ctx context.Context, sessionID, text string) error
	KillSession(ctx context.Context, sessionID string) error
}

// SpecialistResolver resolves a role name or specialist id to a Specialist
// definition. Implemented by internal/specialists.
type SpecialistResolver interface {
	Resolve(ctx context.Context, specialist string) (domain.Specialist, error)
}

// Report mirrors the report_to_parent tool's input payload (spec.md §4.5).
// The Orchestrator never persists a Report itself (the Tool Endpoint does);
// it only uses one to compose the wake-up message and to synthesize an
// auto-report / file-watcher-observed report.
type Report struct {
	TaskID              string
	Summary             string
	FilesModified       []string
	VerificationResults string
	Success             bool
}

// ReportSink is how the Orchestrator submits a report on a child's behalf
// when the child never calls report_to_parent itself: the auto-report
// settlement timer and the .report_to_parent_*.json file-watcher fallback
// both call through this exactly as if the Tool Endpoint's report_to_parent
// tool had been invoked (spec.md §4.4). Implemented by internal/tools.
type ReportSink interface {
	ReportToParent(ctx context.Context, agentID string, report Report) error
}

// DefaultProviders maps a Role to the provider name used when the caller
// doesn't supply one (spec.md §4.4 step 4, "role default (CRAFTER vs
// GATE)").
var DefaultProviders = map[domain.Role]string{
	domain.RoleCrafter: "jsonrpc",
	domain.RoleGate:    "jsonrpc",
}

// Orchestrator implements delegateTaskWithSpawn and the full child
// lifecycle (completion, error, cleanup) described in spec.md §4.4.
type Orchestrator struct {
	sessions     SessionSpawner
	store        store.Facade
	bridge       *bridge.Bridge
	specialists  SpecialistResolver
	reports      ReportSink
	log          telemetry.Logger
	defaultCwd   string

	mu       sync.Mutex
	children map[string]*domain.ChildAgentRecord // agentID -> record
	groups   map[string]*domain.DelegationGroup  // parentAgentID -> active group
	watchers map[string]*fsnotify.Watcher        // agentID -> cwd watcher
	reported map[string]bool                     // agentID -> report already handled
}

// Config bundles the Orchestrator's collaborators for New.
type Config struct {
	Sessions    SessionSpawner
	Store       store.Facade
	Bridge      *bridge.Bridge
	Specialists SpecialistResolver
	Reports     ReportSink
	Log         telemetry.Logger
	DefaultCwd  string
}

// New builds an Orchestrator. Reports may be nil at construction time and
// set later via SetReportSink, since internal/tools (which implements
// ReportSink) itself depends on calling into the Orchestrator to forward
// delegate_task_to_agent, creating a wiring cycle resolved by the caller
// (cmd/server) after both are constructed.
func New(cfg Config) *Orchestrator {
	log := cfg.Log
	if log == nil {
		log, _, _ = telemetry.Noop()
	}
	return &Orchestrator{
		sessions:    cfg.Sessions,
		store:       cfg.Store,
		bridge:      cfg.Bridge,
		specialists: cfg.Specialists,
		reports:     cfg.Reports,
		log:         log,
		defaultCwd:  cfg.DefaultCwd,
		children:    make(map[string]*domain.ChildAgentRecord),
		groups:      make(map[string]*domain.DelegationGroup),
		watchers:    make(map[string]*fsnotify.Watcher),
		reported:    make(map[string]bool),
	}
}

// SetReportSink completes the Orchestrator<->Tool Endpoint wiring cycle.
func (o *Orchestrator) SetReportSink(r ReportSink) {
	o.mu.Lock()
	o.reports = r
	o.mu.Unlock()
}

func newSessionID() string { return uuid.NewString() }

func delegationDepth(a domain.Agent) int {
	v, ok := a.Metadata[domain.MetaDelegationDepth]
	if !ok {
		return 0
	}
	depth := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		depth = depth*10 + int(c-'0')
	}
	return depth
}

func looksLikeUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// TaskLookupHint returns the spec.md §4.4 step-3 discriminating hint
// message when a delegate request names a task that can't be found: a
// UUID-shaped id points the caller at list_tasks; anything else (a
// kebab-case or CamelCase name) points at create_task / convert_task_blocks.
func TaskLookupHint(idOrName string) string {
	if looksLikeUUID(idOrName) {
		return "task not found; use list_tasks to find the correct task id"
	}
	return "task not found; this looks like a task name, not a UUID — if this was meant to be a new task, use create_task or convert_task_blocks first"
}
