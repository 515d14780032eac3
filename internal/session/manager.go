// Package session implements the Agent Session Manager (spec §4.2): the
// registry that owns every live Agent Adapter, enforces the
// CONSTRUCTING -> INITIALIZING -> READY -> ACTIVE(prompt) -> READY |
// TERMINATED state machine, and recovers adapters after a process restart
// by replaying their durable ACPSession record.
//
// Grounded on runtime/agent/session/session.go's registry-owns-handles
// shape: one Store-backed record per session id, a small set of sentinel
// errors, and a single mutex serializing create/kill against lookups.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/telemetry"
)

// Factory constructs a fresh, unstarted Adapter for the given provider
// name. The Manager owns Start/Initialize/NewSession lifecycle calls;
// Factory only needs to pick the right Variant and wire its transport
// (subprocess command, socket, in-process function table, ...).
type Factory func(ctx context.Context, provider string, handler adapter.NotificationHandler) (adapter.Adapter, error)

// WorkspaceProvider is the conventional provider name createWorkspaceAgentSession
// uses when asking Factory for an in-process, native workspace agent.
const WorkspaceProvider = "workspace"

// Info is a read-only snapshot of a registered session, returned by
// ListSessions.
type Info struct {
	SessionID   string
	Provider    string
	ModeID      string
	WorkspaceID string
	State       State
	CreatedAt   time.Time
}

type entry struct {
	mu          sync.Mutex
	sessionID   string
	providerID  string
	provider    string
	workspaceID string
	cwd         string
	modeID      string
	state       State
	createdAt   time.Time
	adapter     adapter.Adapter
	handler     adapter.NotificationHandler
}

// Manager owns the sessionId -> adapter registry. All mutating operations
// take the registry mutex; the entry's own mutex then serializes state
// transitions and adapter calls for that one session, matching spec §5's
// "registry mutations are serialized, per-session work is not" concurrency
// note.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	acp      store.ACPSessions
	newAdapter Factory
	log      telemetry.Logger

	// OnStarted, if set, is invoked once a session reaches READY for the
	// first time. cmd/server wires this to start the Client Streaming
	// Gateway's relay and publish a Started event on the Semantic Event
	// Bridge, without internal/session importing internal/bridge.
	OnStarted func(ctx context.Context, sessionID string)
}

// New builds a Manager. acp is used for durable ACPSession records so a
// dead adapter can be cold-started; factory builds fresh adapters per
// provider.
func New(acp store.ACPSessions, factory Factory, log telemetry.Logger) *Manager {
	return &Manager{
		sessions:   make(map[string]*entry),
		acp:        acp,
		newAdapter: factory,
		log:        log,
	}
}

// CreateSession starts a brand-new provider session: builds an adapter via
// Factory, runs Start/Initialize/NewSession, persists the resulting
// ACPSession, and registers the entry as READY. handler receives every
// notification the adapter emits for this session (normally wired to the
// Semantic Event Bridge, or to the Delegation Orchestrator's onChildUpdate
// for a spawned child); pass nil to fall back to a logging-only handler.
func (m *Manager) CreateSession(ctx context.Context, sessionID, provider, workspaceID, cwd string, handler adapter.NotificationHandler, opts adapter.SessionOptions) (string, error) {
	return m.createSession(ctx, sessionID, provider, workspaceID, cwd, handler, opts)
}

// CreateWorkspaceAgentSession is CreateSession specialized to the
// in-process "workspace" provider used for native agents that don't shell
// out to a subprocess.
func (m *Manager) CreateWorkspaceAgentSession(ctx context.Context, sessionID, workspaceID, cwd string, handler adapter.NotificationHandler, opts adapter.SessionOptions) (string, error) {
	return m.createSession(ctx, sessionID, WorkspaceProvider, workspaceID, cwd, handler, opts)
}

func (m *Manager) createSession(ctx context.Context, sessionID, provider, workspaceID, cwd string, handler adapter.NotificationHandler, opts adapter.SessionOptions) (string, error) {
	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return "", apierr.Newf(apierr.KindAdapterUnavailable, "session %s already registered", sessionID)
	}
	e := &entry{
		sessionID:   sessionID,
		provider:    provider,
		workspaceID: workspaceID,
		cwd:         cwd,
		modeID:      opts.ModeID,
		state:       StateConstructing,
		createdAt:   time.Now(),
	}
	m.sessions[sessionID] = e
	m.mu.Unlock()

	if handler == nil {
		handler = m.recordingHandler(sessionID)
	}
	e.handler = handler
	a, err := m.newAdapter(ctx, provider, e.handler)
	if err != nil {
		m.drop(sessionID)
		return "", apierr.Wrap(apierr.KindAdapterUnavailable, fmt.Sprintf("build adapter for session %s", sessionID), err)
	}
	e.adapter = a

	if err := a.Start(ctx); err != nil {
		m.drop(sessionID)
		return "", apierr.Wrap(apierr.KindAdapterUnavailable, fmt.Sprintf("start adapter for session %s", sessionID), err)
	}
	e.transition(StateInitializing)

	if err := a.Initialize(ctx); err != nil {
		m.drop(sessionID)
		return "", apierr.Wrap(apierr.KindAdapterUnavailable, fmt.Sprintf("initialize adapter for session %s", sessionID), err)
	}

	providerID, err := a.NewSession(ctx, cwd, opts)
	if err != nil {
		m.drop(sessionID)
		return "", apierr.Wrap(apierr.KindAdapterUnavailable, fmt.Sprintf("new session for %s", sessionID), err)
	}
	e.providerID = providerID
	e.transition(StateReady)

	rec := domain.ACPSession{
		ID:          sessionID,
		Cwd:         cwd,
		WorkspaceID: workspaceID,
		Provider:    provider,
		ModeID:      opts.ModeID,
		CreatedAt:   e.createdAt,
		UpdatedAt:   e.createdAt,
	}
	if err := m.acp.Upsert(ctx, rec); err != nil {
		m.log.Warn(ctx, "failed to persist ACP session record", "session_id", sessionID, "err", err)
	}

	if m.OnStarted != nil {
		m.OnStarted(ctx, sessionID)
	}
	return providerID, nil
}

// Prompt sends text to a session's adapter and blocks until end of turn,
// enforcing the READY->ACTIVE->READY transition around the call.
func (m *Manager) Prompt(ctx context.Context, sessionID, text string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if !e.adapter.Alive() {
		e.mu.Unlock()
		return apierr.Newf(apierr.KindAdapterDead, "adapter for session %s is dead", sessionID)
	}
	if err := e.transitionLocked(StateActive); err != nil {
		e.mu.Unlock()
		return err
	}
	a := e.adapter
	e.mu.Unlock()

	promptErr := a.Prompt(ctx, e.providerID, text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateActive {
		e.transitionLocked(StateReady)
	}
	if promptErr != nil {
		return apierr.Wrap(apierr.KindAdapterUnavailable, fmt.Sprintf("prompt session %s", sessionID), promptErr)
	}
	return nil
}

// GetAdapter returns the live adapter for sessionID without attempting
// cold-start recovery.
func (m *Manager) GetAdapter(sessionID string) (adapter.Adapter, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.adapter == nil || !e.adapter.Alive() {
		return nil, apierr.Newf(apierr.KindAdapterDead, "adapter for session %s is dead", sessionID)
	}
	return e.adapter, nil
}

// GetOrRecreateAdapter returns the live adapter for sessionID, attempting
// cold-start recovery from the durable ACPSession record if the session
// isn't registered in memory (e.g. after a control-plane restart) or its
// adapter has died. handler receives notifications from the recreated
// adapter; pass the same handler the caller originally registered so
// streaming resumes where it left off.
func (m *Manager) GetOrRecreateAdapter(ctx context.Context, sessionID string, handler adapter.NotificationHandler) (adapter.Adapter, error) {
	if e, err := m.lookup(sessionID); err == nil {
		e.mu.Lock()
		alive := e.adapter != nil && e.adapter.Alive()
		a := e.adapter
		e.mu.Unlock()
		if alive {
			return a, nil
		}
	}
	return m.coldStart(ctx, sessionID, handler)
}

func (m *Manager) coldStart(ctx context.Context, sessionID string, handler adapter.NotificationHandler) (adapter.Adapter, error) {
	rec, err := m.acp.Get(ctx, sessionID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindColdStartImpossible, fmt.Sprintf("no durable record for session %s", sessionID), err)
	}

	m.mu.Lock()
	e, exists := m.sessions[sessionID]
	if !exists {
		e = &entry{
			sessionID:   sessionID,
			provider:    rec.Provider,
			workspaceID: rec.WorkspaceID,
			cwd:         rec.Cwd,
			modeID:      rec.ModeID,
			state:       StateConstructing,
			createdAt:   rec.CreatedAt,
		}
		m.sessions[sessionID] = e
	}
	m.mu.Unlock()

	if handler == nil {
		handler = m.recordingHandler(sessionID)
	}
	e.handler = handler

	a, err := m.newAdapter(ctx, rec.Provider, handler)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindColdStartImpossible, fmt.Sprintf("rebuild adapter for session %s", sessionID), err)
	}
	if err := a.Start(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindColdStartImpossible, fmt.Sprintf("restart adapter for session %s", sessionID), err)
	}
	if err := a.Initialize(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindColdStartImpossible, fmt.Sprintf("reinitialize adapter for session %s", sessionID), err)
	}
	providerID, err := a.NewSession(ctx, rec.Cwd, adapter.SessionOptions{ModeID: rec.ModeID})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindColdStartImpossible, fmt.Sprintf("recreate provider session for %s", sessionID), err)
	}

	e.mu.Lock()
	e.adapter = a
	e.providerID = providerID
	e.state = StateReady
	e.mu.Unlock()

	m.log.Info(ctx, "cold-started adapter", "session_id", sessionID, "provider", rec.Provider)
	return a, nil
}

// SetSessionMode applies modeID to the session's adapter once. Per spec §9
// this is best-effort: adapters without mode support treat it as a no-op,
// and nothing re-applies the mode at a later prompt/newSession.
func (m *Manager) SetSessionMode(ctx context.Context, sessionID, modeID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.adapter == nil || !e.adapter.Alive() {
		return apierr.Newf(apierr.KindAdapterDead, "adapter for session %s is dead", sessionID)
	}
	if err := e.adapter.SetMode(ctx, e.providerID, modeID); err != nil {
		return apierr.Wrap(apierr.KindAdapterUnavailable, fmt.Sprintf("set mode for session %s", sessionID), err)
	}
	e.modeID = modeID
	return nil
}

// KillSession terminates one session's adapter, transitions it to
// TERMINATED, and removes it from the registry and durable store.
func (m *Manager) KillSession(ctx context.Context, sessionID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	a := e.adapter
	e.transitionLocked(StateTerminated)
	e.mu.Unlock()

	var killErr error
	if a != nil {
		killErr = a.Kill(ctx)
	}
	if err := m.acp.Delete(ctx, sessionID); err != nil {
		m.log.Warn(ctx, "failed to delete ACP session record", "session_id", sessionID, "err", err)
	}
	m.drop(sessionID)
	if killErr != nil {
		return apierr.Wrap(apierr.KindAdapterUnavailable, fmt.Sprintf("kill session %s", sessionID), killErr)
	}
	return nil
}

// KillAll terminates every registered session, collecting but not
// stopping on individual failures.
func (m *Manager) KillAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.KillSession(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ListSessions returns a snapshot of every registered session.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		e.mu.Lock()
		out = append(out, Info{
			SessionID:   e.sessionID,
			Provider:    e.provider,
			ModeID:      e.modeID,
			WorkspaceID: e.workspaceID,
			State:       e.state,
			CreatedAt:   e.createdAt,
		})
		e.mu.Unlock()
	}
	return out
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, apierr.Newf(apierr.KindSessionNotFound, "session %s not found", sessionID)
	}
	return e, nil
}

func (m *Manager) drop(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// recordingHandler wraps a no-op default: callers that need streaming
// updates install their own handler by passing one to
// GetOrRecreateAdapter; CreateSession's initial handler only keeps the
// adapter's read loop draining so Alive() stays meaningful before a
// subscriber attaches.
func (m *Manager) recordingHandler(sessionID string) adapter.NotificationHandler {
	return func(msg adapter.Notification) {
		m.log.Debug(context.Background(), "adapter notification", "session_id", sessionID, "method", msg.Method)
	}
}

func (e *entry) transition(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transitionLocked(to)
}

func (e *entry) transitionLocked(to State) error {
	if !e.state.canTransition(to) {
		return apierr.Newf(apierr.KindAdapterUnavailable, "illegal transition %s -> %s for session %s", e.state, to, e.sessionID)
	}
	e.state = to
	return nil
}
