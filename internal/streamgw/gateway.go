// Package streamgw implements the Client Streaming Gateway: for each
// attached session it forwards Semantic Event Bridge updates (including
// child-session updates the Delegation Orchestrator injects onto a
// parent's stream) to connected clients over Server-Sent Events, and
// handles session attach/detach.
//
// Grounded on registry/stream_manager.go's lazy, double-checked-lock
// per-key stream map (GetOrCreateStream), adapted from per-toolset Pulse
// streams to per-session fan-out channels. Cross-node delivery uses
// github.com/redis/go-redis/v9 pub/sub directly in place of Pulse
// (goa.design/pulse is dropped per DESIGN.md: its registry/stream
// semantics are generalized here onto the plain Redis client already used
// by the Background Task Engine's reservation lock). A nil *redis.Client
// degrades to in-process-only fan-out, matching
// internal/background.ReservationLock's single-process/test fallback.
package streamgw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/fleetctl/core/internal/bridge"
	"github.com/fleetctl/core/internal/telemetry"
)

func channelName(sessionID string) string { return "fleetctl:stream:" + sessionID }

// Gateway fans a session's Bridge events out to every attached client.
type Gateway struct {
	bridge *bridge.Bridge
	redis  *redis.Client
	log    telemetry.Logger

	mu      sync.RWMutex
	subs    map[string]map[chan bridge.Event]struct{} // sessionID -> attached client channels
	relayed map[string]func()                        // sessionID -> bridge unsubscribe, once relayed
}

// New builds a Gateway. rdb may be nil (in-process fan-out only).
func New(b *bridge.Bridge, rdb *redis.Client, log telemetry.Logger) *Gateway {
	if log == nil {
		log, _, _ = telemetry.Noop()
	}
	return &Gateway{
		bridge:  b,
		redis:   rdb,
		log:     log,
		subs:    make(map[string]map[chan bridge.Event]struct{}),
		relayed: make(map[string]func()),
	}
}

// Relay wires sessionID's Bridge events into the gateway's fan-out, and
// (when Redis is configured) onto the cross-node bus. Idempotent per
// session; called wherever a session starts (Manager's OnStarted hook,
// Background Task Engine's runReserved) so events reach attached clients
// regardless of which process owns the session's Bridge.
func (g *Gateway) Relay(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.relayed[sessionID]; ok {
		return
	}
	if g.bridge == nil {
		return
	}
	unsubscribe := g.bridge.Subscribe(sessionID, func(evt bridge.Event) {
		g.fanOut(sessionID, evt)
		g.publishRemote(context.Background(), sessionID, evt)
	})
	g.relayed[sessionID] = unsubscribe
}

// StopRelay tears down sessionID's Bridge subscription (spec "session
// detach"). Attached client channels are closed so their SSE handlers can
// end the response.
func (g *Gateway) StopRelay(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if unsub, ok := g.relayed[sessionID]; ok {
		unsub()
		delete(g.relayed, sessionID)
	}
	for ch := range g.subs[sessionID] {
		close(ch)
	}
	delete(g.subs, sessionID)
}

// fanOut delivers evt to every client channel attached to sessionID on this
// node. A full channel (a slow client) drops the event rather than
// blocking the Bridge's single normalizing goroutine.
func (g *Gateway) fanOut(sessionID string, evt bridge.Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for ch := range g.subs[sessionID] {
		select {
		case ch <- evt:
		default:
			g.log.Warn(context.Background(), "streamgw: dropping event for slow client", "sessionId", sessionID)
		}
	}
}

func (g *Gateway) publishRemote(ctx context.Context, sessionID string, evt bridge.Event) {
	if g.redis == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		g.log.Warn(ctx, "streamgw: marshal event failed", "sessionId", sessionID, "error", err.Error())
		return
	}
	if err := g.redis.Publish(ctx, channelName(sessionID), payload).Err(); err != nil {
		g.log.Warn(ctx, "streamgw: redis publish failed", "sessionId", sessionID, "error", err.Error())
	}
}

// Attach registers a client channel for sessionID (direct, in-process
// delivery) and, when Redis is configured, also subscribes to the
// cross-node channel so events published by another gateway node arrive
// too. The returned detach func must be called when the client
// disconnects.
func (g *Gateway) Attach(ctx context.Context, sessionID string) (<-chan bridge.Event, func(), error) {
	ch := make(chan bridge.Event, 64)

	g.mu.Lock()
	if g.subs[sessionID] == nil {
		g.subs[sessionID] = make(map[chan bridge.Event]struct{})
	}
	g.subs[sessionID][ch] = struct{}{}
	g.mu.Unlock()

	var stopRemote func()
	if g.redis != nil {
		sub := g.redis.Subscribe(ctx, channelName(sessionID))
		remoteCh := sub.Channel()
		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-done:
					return
				case msg, ok := <-remoteCh:
					if !ok {
						return
					}
					var evt bridge.Event
					if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
						continue
					}
					select {
					case ch <- evt:
					default:
					}
				}
			}
		}()
		stopRemote = func() {
			close(done)
			sub.Close()
		}
	}

	detach := func() {
		g.mu.Lock()
		delete(g.subs[sessionID], ch)
		if len(g.subs[sessionID]) == 0 {
			delete(g.subs, sessionID)
		}
		g.mu.Unlock()
		if stopRemote != nil {
			stopRemote()
		}
	}
	return ch, detach, nil
}

// Register mounts the SSE attach endpoint on r.
func (g *Gateway) Register(r *mux.Router) {
	r.HandleFunc("/sessions/{sessionId}/stream", g.Handle).Methods(http.MethodGet)
}

// Handle streams sessionID's events to the client as Server-Sent Events
// until the client disconnects or the session's relay stops.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, detach, err := g.Attach(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(wireEnvelope(sessionID, evt))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, payload)
			flusher.Flush()
		}
	}
}

// wireFrame is the SSE payload shape (spec "Client streaming endpoint":
// each event carries {sessionId, update: {...}}; update.sessionUpdate
// discriminates the kind; child updates carry extra
// {childAgentId, childSessionId} and sessionId rewritten to the parent).
type wireFrame struct {
	SessionID string `json:"sessionId"`
	Update    any    `json:"update"`
}

type wireUpdate struct {
	SessionUpdate  bridge.Kind     `json:"sessionUpdate"`
	Text           string          `json:"text,omitempty"`
	ToolCallID     string          `json:"toolCallId,omitempty"`
	ToolName       string          `json:"toolName,omitempty"`
	ToolArgs       json.RawMessage `json:"toolArgs,omitempty"`
	Partial        json.RawMessage `json:"partial,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	IsError        bool            `json:"isError,omitempty"`
	StopReason     string          `json:"stopReason,omitempty"`
	Message        string          `json:"message,omitempty"`
	ModeID         string          `json:"modeId,omitempty"`
	TaskID         string          `json:"taskId,omitempty"`
	ChildAgentID   string          `json:"childAgentId,omitempty"`
	ChildSessionID string          `json:"childSessionId,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// wireEnvelope rewrites evt into the {sessionId, update} frame, always
// keying sessionId on the parent's session (the attach target) regardless
// of which child session originated a KindChildUpdate.
func wireEnvelope(sessionID string, evt bridge.Event) wireFrame {
	return wireFrame{
		SessionID: sessionID,
		Update: wireUpdate{
			SessionUpdate:  evt.Kind,
			Text:           evt.Text,
			ToolCallID:     evt.ToolCallID,
			ToolName:       evt.ToolName,
			ToolArgs:       evt.ToolArgs,
			Partial:        evt.Partial,
			Result:         evt.Result,
			IsError:        evt.IsError,
			StopReason:     evt.StopReason,
			Message:        evt.Message,
			ModeID:         evt.ModeID,
			TaskID:         evt.TaskID,
			ChildAgentID:   evt.ChildAgentID,
			ChildSessionID: evt.ChildSessionID,
			Raw:            evt.Raw,
		},
	}
}
