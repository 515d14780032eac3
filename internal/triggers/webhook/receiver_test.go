package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store/memstore"
	"github.com/fleetctl/core/internal/triggers/webhook"
)

type fakeEnqueuer struct {
	tasks []domain.BackgroundTask
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, t domain.BackgroundTask) (domain.BackgroundTask, error) {
	t.ID = "task-1"
	f.tasks = append(f.tasks, t)
	return t, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestServer(t *testing.T, cfg domain.WebhookConfig, enq *fakeEnqueuer) (*httptest.Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.WebhookConfigs().Upsert(context.Background(), cfg))

	rc := webhook.New(webhook.Config{Configs: st.WebhookConfigs(), Logs: st.WebhookTriggerLogs(), Engine: enq})
	r := mux.NewRouter()
	rc.Register(r)
	return httptest.NewServer(r), st
}

func TestHandleTriggersBackgroundTaskOnMatchingEvent(t *testing.T) {
	cfg := domain.WebhookConfig{
		ID: "cfg-1", Repo: "acme/widgets", Enabled: true, WebhookSecret: "shh",
		EventTypes: map[string]bool{"issues": true}, WorkspaceID: "ws-1",
	}
	enq := &fakeEnqueuer{}
	srv, st := newTestServer(t, cfg, enq)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"action":     "opened",
		"repository": map[string]any{"full_name": "acme/widgets"},
		"issue":      map[string]any{"title": "bug found", "number": float64(7)},
	})

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-Hub-Signature-256", sign("shh", body))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, domain.TriggerWebhook, enq.tasks[0].TriggerSource)
	assert.Equal(t, "ws-1", enq.tasks[0].WorkspaceID)
	assert.Equal(t, "[GitHub issues] opened", enq.tasks[0].Title)

	logs, err := st.WebhookTriggerLogs().ListByConfig(context.Background(), "cfg-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.OutcomeTriggered, logs[0].Outcome)
	assert.True(t, logs[0].SignatureValid)
}

func TestHandleRejectsInvalidSignature(t *testing.T) {
	cfg := domain.WebhookConfig{ID: "cfg-1", Repo: "acme/widgets", Enabled: true, WebhookSecret: "shh"}
	enq := &fakeEnqueuer{}
	srv, st := newTestServer(t, cfg, enq)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"repository": map[string]any{"full_name": "acme/widgets"}})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, enq.tasks)
	logs, err := st.WebhookTriggerLogs().ListByConfig(context.Background(), "cfg-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.OutcomeError, logs[0].Outcome)
	assert.False(t, logs[0].SignatureValid)
}

func TestHandleSkipsNonMatchingEventType(t *testing.T) {
	cfg := domain.WebhookConfig{
		ID: "cfg-1", Repo: "acme/widgets", Enabled: true,
		EventTypes: map[string]bool{"pull_request": true},
	}
	enq := &fakeEnqueuer{}
	srv, st := newTestServer(t, cfg, enq)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"repository": map[string]any{"full_name": "acme/widgets"}})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "issues")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, enq.tasks)
	logs, err := st.WebhookTriggerLogs().ListByConfig(context.Background(), "cfg-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.OutcomeSkipped, logs[0].Outcome)
}

func TestPromptTemplateSubstitutesTokens(t *testing.T) {
	cfg := domain.WebhookConfig{
		ID: "cfg-1", Repo: "acme/widgets", Enabled: true,
		EventTypes:     map[string]bool{"issues": true},
		PromptTemplate: "{{repo}} saw {{event}}/{{action}}: {{context}}",
	}
	enq := &fakeEnqueuer{}
	srv, st := newTestServer(t, cfg, enq)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"action":     "opened",
		"repository": map[string]any{"full_name": "acme/widgets"},
		"issue":      map[string]any{"title": "bug found", "number": float64(7)},
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "issues")
	_, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	require.Len(t, enq.tasks, 1)
	assert.Contains(t, enq.tasks[0].Prompt, "acme/widgets saw issues/opened")
	assert.Contains(t, enq.tasks[0].Prompt, "Issue #7 opened: bug found")
	_ = st
}
