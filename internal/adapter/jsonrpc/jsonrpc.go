// Package jsonrpc implements the SubprocessJSONRPC Agent Adapter variant: a
// spawned provider binary that speaks newline-delimited JSON-RPC 2.0 over
// stdio. Requests are correlated with responses by JSON-RPC id.
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/telemetry"
)

// JSON-RPC 2.0 canonical error codes. Provider error responses are not
// mapped onto these; call reports every provider error as ADAPTER_DEAD.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Adapter spawns a command and speaks JSON-RPC 2.0 over its stdio.
type Adapter struct {
	command string
	args    []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending map[int64]chan response
	nextID  int64
	alive   atomic.Bool

	handler adapter.NotificationHandler
	logger  telemetry.Logger
}

// New constructs a JSON-RPC subprocess adapter for the given command. handler
// receives every session/update notification (and any other unsolicited
// message) emitted by the provider.
func New(command string, args []string, handler adapter.NotificationHandler, logger telemetry.Logger) *Adapter {
	if logger == nil {
		logger, _, _ = telemetry.Noop()
	}
	return &Adapter{
		command: command,
		args:    args,
		pending: make(map[int64]chan response),
		handler: handler,
		logger:  logger,
	}
}

var _ adapter.Adapter = (*Adapter)(nil)

// Start is idempotent: spawning twice is a no-op.
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
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			a.logger.Warn(context.Background(), "jsonrpc: malformed line from provider", "error", err.Error())
			continue
		}
		if resp.Method == "session/update" {
			if a.handler != nil {
				a.handler(adapter.Notification{Method: resp.Method, Params: resp.Params})
			}
			continue
		}
		a.mu.Lock()
		ch, ok := a.pending[resp.ID]
		if ok {
			delete(a.pending, resp.ID)
		}
		a.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	a.alive.Store(false)
	a.mu.Lock()
	for id, ch := range a.pending {
		close(ch)
		delete(a.pending, id)
	}
	a.mu.Unlock()
}

func (a *Adapter) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !a.alive.Load() {
		return nil, apierr.New(apierr.KindAdapterDead, "provider process is no longer running")
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindAdapterDead, "encode provider request", err)
	}
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	ch := make(chan response, 1)
	a.pending[id] = ch
	stdin := a.stdin
	a.mu.Unlock()

	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindAdapterDead, "encode provider request", err)
	}
	line = append(line, '\n')
	if _, err := stdin.Write(line); err != nil {
		return nil, apierr.Wrap(apierr.KindAdapterDead, "write to provider process", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, apierr.New(apierr.KindAdapterDead, "provider process terminated mid-call")
		}
		if resp.Error != nil {
			return nil, apierr.Newf(apierr.KindAdapterDead, "provider error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

// Initialize negotiates capabilities with the provider.
func (a *Adapter) Initialize(ctx context.Context) error {
	_, err := a.call(ctx, "initialize", map[string]any{})
	return err
}

// NewSession creates a provider-side session bound to cwd.
func (a *Adapter) NewSession(ctx context.Context, cwd string, opts adapter.SessionOptions) (string, error) {
	result, err := a.call(ctx, "session/new", map[string]any{
		"cwd":       cwd,
		"modeId":    opts.ModeID,
		"extraArgs": opts.ExtraArgs,
		"extraEnv":  opts.ExtraEnv,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", apierr.Wrap(apierr.KindAdapterDead, "decode session/new result", err)
	}
	return out.SessionID, nil
}

// Prompt blocks until the provider signals end of turn for sessionID.
func (a *Adapter) Prompt(ctx context.Context, sessionID, text string) error {
	_, err := a.call(ctx, "session/prompt", map[string]any{"sessionId": sessionID, "text": text})
	return err
}

// SetMode is best-effort: providers that reject it are treated as no-ops.
func (a *Adapter) SetMode(ctx context.Context, sessionID, modeID string) error {
	_, err := a.call(ctx, "session/set_mode", map[string]any{"sessionId": sessionID, "modeId": modeID})
	if err != nil && !a.alive.Load() {
		return err
	}
	return nil
}

// Cancel requests the provider stop the in-flight prompt for sessionID.
func (a *Adapter) Cancel(ctx context.Context, sessionID string) error {
	_, err := a.call(ctx, "session/cancel", map[string]any{"sessionId": sessionID})
	return err
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
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill provider process: %w", err)
	}
	return nil
}

// Alive reports whether the provider process is still running.
func (a *Adapter) Alive() bool { return a.alive.Load() }
