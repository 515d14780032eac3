// Package adapter defines the Agent Adapter contract: the uniform interface
// every agent provider (subprocess JSON-RPC, subprocess line-delimited
// JSON, in-process SDK) must satisfy so the rest of the control plane never
// needs to know which provider backs a session.
package adapter

import (
	"context"
	"encoding/json"
)

// NotificationHandler receives every message emitted by a provider,
// including the asynchronous session/update notifications that carry raw
// provider updates. Handlers are invoked synchronously by the adapter's
// read loop and must not block indefinitely.
type NotificationHandler func(msg Notification)

// Notification is a single message from a provider's update stream. Method
// is "session/update" for streaming updates; Params carries the raw,
// provider-specific update payload.
type Notification struct {
	Method string
	Params json.RawMessage
}

// SessionOptions configures a new provider-side session.
type SessionOptions struct {
	ModeID    string
	ExtraArgs []string
	ExtraEnv  map[string]string
}

// Adapter is the uniform contract over heterogeneous agent providers. All
// operations may suspend (subprocess I/O, provider RPC). Implementations
// must honor:
//
//   - start/initialize/kill are idempotent.
//   - prompt resolves only after the matching terminal session/update has
//     been delivered to the notification handler.
//   - cancel is cooperative: in-flight prompts may still emit final updates,
//     which must still be delivered.
//   - once Alive() reports false, every subsequent operation fails with
//     apierr.KindAdapterDead.
type Adapter interface {
	// Start establishes the underlying transport. Idempotent: a second call
	// is a no-op.
	Start(ctx context.Context) error
	// Initialize negotiates capabilities. May be a no-op for providers that
	// don't support capability negotiation (e.g. stream-json).
	Initialize(ctx context.Context) error
	// NewSession creates a provider-side session bound to cwd and returns its
	// provider-assigned session id.
	NewSession(ctx context.Context, cwd string, opts SessionOptions) (string, error)
	// Prompt sends text to the given session and blocks until the provider
	// signals end of turn.
	Prompt(ctx context.Context, sessionID, text string) error
	// SetMode is best-effort: providers without mode support must not fail.
	SetMode(ctx context.Context, sessionID, modeID string) error
	// Cancel requests the provider stop the in-flight prompt for sessionID.
	// Subsequent prompts on the same session must still be accepted.
	Cancel(ctx context.Context, sessionID string) error
	// Kill releases all resources held by the adapter. Idempotent.
	Kill(ctx context.Context) error
	// Alive reports whether the adapter's transport is still usable.
	Alive() bool
}

// Variant identifies which concrete Adapter implementation backs a
// provider name, used by the session manager to pick a constructor.
type Variant string

const (
	VariantSubprocessJSONRPC  Variant = "subprocess_jsonrpc"
	VariantSubprocessStreamJSON Variant = "subprocess_stream_json"
	VariantInProcessSDK       Variant = "in_process_sdk"
)
