package bridge

import (
	"context"
	"sync"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/telemetry"
)

// Bridge normalizes raw provider notifications into ordered AgentEvents and
// fans them out to per-session subscribers. One Bridge instance is shared
// across every session; per-session state (sequence counter, subscriber
// list) is isolated behind its own mutex so sessions never contend with
// each other, matching spec §5's "across sessions there is no ordering
// guarantee" and §4.3's "the bridge is single-writer per session".
type Bridge struct {
	norm Normalizer
	log  telemetry.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	mu   sync.Mutex
	seq  int64
	subs map[int]Handler
	next int
}

// New builds a Bridge using norm to translate raw provider notifications.
// Pass ACPNormalizer{} for the common case where every wired provider
// follows the shared session/update wire shape.
func New(norm Normalizer, log telemetry.Logger) *Bridge {
	if log == nil {
		log, _, _ = telemetry.Noop()
	}
	return &Bridge{norm: norm, log: log, sessions: make(map[string]*sessionState)}
}

// HandleNotification normalizes one raw provider notification for
// sessionID and delivers the resulting events, in order, to every current
// subscriber of that session. This is the function an Agent Session
// Manager's NotificationHandler should call for every adapter notification.
func (b *Bridge) HandleNotification(ctx context.Context, sessionID string, n adapter.Notification) {
	events, err := b.norm.Normalize(sessionID, n)
	if err != nil {
		b.log.Warn(ctx, "bridge: normalize failed", "session_id", sessionID, "err", err)
		return
	}
	if len(events) == 0 {
		return
	}
	st := b.stateFor(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range events {
		st.seq++
		events[i].Seq = st.seq
		b.deliverLocked(ctx, st, events[i])
	}
}

// Publish delivers a pre-built event to sessionID's subscribers, stamping
// it with the next sequence number. Used by components upstream of a raw
// provider notification (for example, the Delegation Orchestrator
// synthesizing a task_completion update for a parent's stream).
func (b *Bridge) Publish(ctx context.Context, sessionID string, evt Event) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	evt.SessionID = sessionID
	evt.Seq = st.seq
	b.deliverLocked(ctx, st, evt)
}

// deliverLocked must be called with st.mu held. A subscriber that panics is
// isolated: its handler is removed and delivery continues to the rest,
// honoring spec §4.3's "a subscriber that throws is isolated; others
// continue".
func (b *Bridge) deliverLocked(ctx context.Context, st *sessionState, evt Event) {
	for id, h := range st.subs {
		b.invokeIsolated(ctx, st, id, h, evt)
	}
}

func (b *Bridge) invokeIsolated(ctx context.Context, st *sessionState, id int, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(ctx, "bridge: subscriber panicked, unsubscribing", "session_id", evt.SessionID, "panic", r)
			delete(st.subs, id)
		}
	}()
	h(evt)
}

// Subscribe registers handler to receive every subsequent event for
// sessionID. The returned function unsubscribes and releases resources;
// it is safe to call more than once.
func (b *Bridge) Subscribe(sessionID string, handler Handler) (unsubscribe func()) {
	st := b.stateFor(sessionID)
	st.mu.Lock()
	id := st.next
	st.next++
	st.subs[id] = handler
	st.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.subs, id)
			st.mu.Unlock()
		})
	}
}

// Forget drops all bridge state for sessionID (subscriber list and
// sequence counter), called once a session is killed.
func (b *Bridge) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}

func (b *Bridge) stateFor(sessionID string) *sessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		st = &sessionState{subs: make(map[int]Handler)}
		b.sessions[sessionID] = st
	}
	return st
}
