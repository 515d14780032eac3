// Package streamjson implements the SubprocessStreamJSON Agent Adapter
// variant: a spawned provider binary that emits line-delimited JSON events
// on stdout with no request/response framing. The session id is not
// returned synchronously — it emerges from the first
// {"type":"system","subtype":"init","session_id":...} event, per the
// provider family this variant models.
package streamjson

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/telemetry"
)

type event struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Result    json.RawMessage `json:"result"`
}

// Adapter spawns a command and reads line-delimited JSON events from stdout,
// writing prompts as line-delimited JSON on stdin.
type Adapter struct {
	command string
	args    []string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	sessionID string
	sessionCh chan string
	turnDone  chan struct{}
	alive     atomic.Bool

	handler adapter.NotificationHandler
	logger  telemetry.Logger
}

// New constructs a stream-json subprocess adapter.
func New(command string, args []string, handler adapter.NotificationHandler, logger telemetry.Logger) *Adapter {
	if logger == nil {
		logger, _, _ = telemetry.Noop()
	}
	return &Adapter{
		command:   command,
		args:      args,
		sessionCh: make(chan string, 1),
		handler:   handler,
		logger:    logger,
	}
}

var _ adapter.Adapter = (*Adapter)(nil)

// Start spawns the provider process. Idempotent.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cmd != nil {
		return nil
	}
	cmd := exec.CommandContext(ctx, a.command, a.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return apierr.Wrap(apierr.KindAdapterUnavailable, "start provider process", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apierr.Wrap(apierr.KindAdapterUnavailable, "start provider process", err)
	}
	if err := cmd.Start(); err != nil {
		return apierr.Wrap(apierr.KindAdapterUnavailable, "start provider process", err)
	}
	a.cmd = cmd
	a.stdin = stdin
	a.alive.Store(true)
	go a.readLoop(stdout)
	return nil
}

func (a *Adapter) readLoop(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt event
		if err := json.Unmarshal(line, &evt); err != nil {
			a.logger.Warn(context.Background(), "streamjson: malformed line from provider", "error", err.Error())
			continue
		}
		if evt.Type == "system" && evt.Subtype == "init" && evt.SessionID != "" {
			a.mu.Lock()
			if a.sessionID == "" {
				a.sessionID = evt.SessionID
				select {
				case a.sessionCh <- evt.SessionID:
				default:
				}
			}
			a.mu.Unlock()
		}
		if a.handler != nil {
			raw, _ := json.Marshal(evt)
			a.handler(adapter.Notification{Method: "session/update", Params: raw})
		}
		if evt.Type == "result" {
			a.mu.Lock()
			done := a.turnDone
			a.turnDone = nil
			a.mu.Unlock()
			if done != nil {
				close(done)
			}
		}
	}
	a.alive.Store(false)
	a.mu.Lock()
	if a.turnDone != nil {
		close(a.turnDone)
		a.turnDone = nil
	}
	a.mu.Unlock()
}

// Initialize is a no-op for stream-json providers, which negotiate no
// capabilities.
func (a *Adapter) Initialize(ctx context.Context) error { return nil }

// NewSession starts the provider's implicit session by waiting for the
// first system/init event; cwd and opts are passed via process args/env at
// Start time for this variant, so NewSession here only awaits the id.
func (a *Adapter) NewSession(ctx context.Context, cwd string, opts adapter.SessionOptions) (string, error) {
	select {
	case id := <-a.sessionCh:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Prompt writes text as a line-delimited JSON user message and blocks until
// a terminal "result" event is observed.
func (a *Adapter) Prompt(ctx context.Context, sessionID, text string) error {
	if !a.alive.Load() {
		return apierr.New(apierr.KindAdapterDead, "provider process is no longer running")
	}
	a.mu.Lock()
	done := make(chan struct{})
	a.turnDone = done
	stdin := a.stdin
	a.mu.Unlock()

	msg := map[string]any{"type": "user", "message": map[string]any{"role": "user", "content": text}}
	raw, err := json.Marshal(msg)
	if err != nil {
		return apierr.Wrap(apierr.KindAdapterDead, "encode prompt", err)
	}
	raw = append(raw, '\n')
	if _, err := stdin.Write(raw); err != nil {
		return apierr.Wrap(apierr.KindAdapterDead, "write prompt to provider", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// SetMode is unsupported for this variant and is always a best-effort no-op.
func (a *Adapter) SetMode(ctx context.Context, sessionID, modeID string) error { return nil }

// Cancel requests the provider stop; this variant has no explicit cancel
// message, so Cancel kills the underlying process (subsequent prompts on a
// fresh adapter are still accepted by the session manager's respawn path).
func (a *Adapter) Cancel(ctx context.Context, sessionID string) error {
	return a.Kill(ctx)
}

// Kill terminates the provider process. Idempotent.
func (a *Adapter) Kill(ctx context.Context) error {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		a.alive.Store(false)
		return nil
	}
	a.alive.Store(false)
	_ = a.stdin.Close()
	return cmd.Process.Kill()
}

// Alive reports whether the provider process is still running.
func (a *Adapter) Alive() bool { return a.alive.Load() }
