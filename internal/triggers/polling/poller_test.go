package polling_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store/memstore"
	"github.com/fleetctl/core/internal/triggers/polling"
)

type fakeHandler struct {
	mu     sync.Mutex
	events []string // "eventType/action"
}

func (f *fakeHandler) HandleEvent(ctx context.Context, cfg domain.WebhookConfig, eventType, action string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType+"/"+action)
	return nil
}

func (f *fakeHandler) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, keyvals ...any) {}
func (l *recordingLogger) Info(ctx context.Context, msg string, keyvals ...any)  {}
func (l *recordingLogger) Error(ctx context.Context, msg string, keyvals ...any) {}
func (l *recordingLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(msg, keyvals))
}

func githubEvent(id, apiType, action string) map[string]any {
	payload, _ := json.Marshal(map[string]any{"action": action})
	return map[string]any{
		"id":         id,
		"type":       apiType,
		"repo":       map[string]any{"name": "acme/widgets"},
		"payload":    json.RawMessage(payload),
		"created_at": time.Now().Format(time.RFC3339),
	}
}

func TestPollerDispatchesNewEventsOldestFirst(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		events := []map[string]any{
			githubEvent("3", "IssuesEvent", "closed"),
			githubEvent("2", "IssuesEvent", "reopened"),
			githubEvent("1", "IssuesEvent", "opened"),
		}
		json.NewEncoder(w).Encode(events)
	}))
	defer srv.Close()

	st := memstore.New()
	require.NoError(t, st.WebhookConfigs().Upsert(context.Background(), domain.WebhookConfig{
		ID: "cfg-1", Repo: "acme/widgets", Enabled: true,
	}))

	handler := &fakeHandler{}
	p := polling.New(polling.Config{Configs: st.WebhookConfigs(), Handler: handler, Interval: time.Hour, BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Tick(ctx)

	assert.Equal(t, []string{"issues/opened", "issues/reopened", "issues/closed"}, handler.snapshot())
}

func TestPollerSkipsAlreadySeenEventsOnNextTick(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var events []map[string]any
		if calls == 1 {
			events = []map[string]any{githubEvent("1", "IssuesEvent", "opened")}
		} else {
			events = []map[string]any{githubEvent("1", "IssuesEvent", "opened")}
		}
		json.NewEncoder(w).Encode(events)
	}))
	defer srv.Close()

	st := memstore.New()
	require.NoError(t, st.WebhookConfigs().Upsert(context.Background(), domain.WebhookConfig{
		ID: "cfg-1", Repo: "acme/widgets", Enabled: true,
	}))

	handler := &fakeHandler{}
	p := polling.New(polling.Config{Configs: st.WebhookConfigs(), Handler: handler, Interval: time.Hour, BaseURL: srv.URL})

	ctx := context.Background()
	p.Tick(ctx)
	p.Tick(ctx)

	assert.Equal(t, []string{"issues/opened"}, handler.snapshot())
}

func TestPollerSurfacesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	st := memstore.New()
	require.NoError(t, st.WebhookConfigs().Upsert(context.Background(), domain.WebhookConfig{
		ID: "cfg-1", Repo: "acme/widgets", Enabled: true,
	}))

	handler := &fakeHandler{}
	logger := &recordingLogger{}
	p := polling.New(polling.Config{Configs: st.WebhookConfigs(), Handler: handler, Interval: time.Hour, BaseURL: srv.URL, Log: logger})

	p.Tick(context.Background())
	assert.Empty(t, handler.snapshot())
	require.Len(t, logger.warns, 1)
	assert.Contains(t, logger.warns[0], "RATE_LIMITED")
}
