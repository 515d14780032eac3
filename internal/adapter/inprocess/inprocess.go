// Package inprocess implements the InProcessSDK Agent Adapter variant: a
// plain Go function value invoked directly, with no subprocess and no wire
// framing. Used for server-style providers (a native workspace agent, a
// direct model-gateway call the process already has library access to).
package inprocess

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/apierr"
)

// PromptFunc runs one turn in-process. It must emit notifications via
// publish for every update it wants the Semantic Event Bridge to normalize,
// and must return only once the turn is complete.
type PromptFunc func(ctx context.Context, sessionID, cwd, text string, publish func(adapter.Notification)) error

// Adapter wraps a PromptFunc as an Adapter. Sessions are tracked purely by
// id; NewSession simply mints one and records cwd for later prompts.
type Adapter struct {
	fn PromptFunc

	mu       sync.Mutex
	sessions map[string]string // sessionID -> cwd
	handler  adapter.NotificationHandler
	alive    atomic.Bool
}

// New constructs an in-process adapter around fn. handler receives every
// notification fn publishes during a Prompt call.
func New(fn PromptFunc, handler adapter.NotificationHandler) *Adapter {
	a := &Adapter{fn: fn, sessions: make(map[string]string), handler: handler}
	a.alive.Store(true)
	return a
}

var _ adapter.Adapter = (*Adapter)(nil)

// Start is a no-op: there is no transport to establish.
func (a *Adapter) Start(ctx context.Context) error { return nil }

// Initialize is a no-op: there is no capability negotiation in-process.
func (a *Adapter) Initialize(ctx context.Context) error { return nil }

// NewSession mints a fresh session id bound to cwd.
func (a *Adapter) NewSession(ctx context.Context, cwd string, opts adapter.SessionOptions) (string, error) {
	if !a.alive.Load() {
		return "", apierr.New(apierr.KindAdapterDead, "in-process adapter has been killed")
	}
	id := uuid.NewString()
	a.mu.Lock()
	a.sessions[id] = cwd
	a.mu.Unlock()
	return id, nil
}

// Prompt runs the wrapped function synchronously for sessionID.
func (a *Adapter) Prompt(ctx context.Context, sessionID, text string) error {
	if !a.alive.Load() {
		return apierr.New(apierr.KindAdapterDead, "in-process adapter has been killed")
	}
	a.mu.Lock()
	cwd, ok := a.sessions[sessionID]
	handler := a.handler
	a.mu.Unlock()
	if !ok {
		return apierr.New(apierr.KindSessionNotFound, "unknown in-process session")
	}
	publish := func(n adapter.Notification) {
		if handler != nil {
			handler(n)
		}
	}
	return a.fn(ctx, sessionID, cwd, text, publish)
}

// SetMode is a no-op: in-process adapters have no externally observable
// mode concept beyond what the caller's fn chooses to branch on.
func (a *Adapter) SetMode(ctx context.Context, sessionID, modeID string) error { return nil }

// Cancel is cooperative via ctx cancellation; callers should cancel the
// context passed to Prompt to request a stop.
func (a *Adapter) Cancel(ctx context.Context, sessionID string) error { return nil }

// Kill marks the adapter dead. Idempotent.
func (a *Adapter) Kill(ctx context.Context) error {
	a.alive.Store(false)
	return nil
}

// Alive reports whether the adapter has been killed.
func (a *Adapter) Alive() bool { return a.alive.Load() }
