package tools_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/orchestrator"
	"github.com/fleetctl/core/internal/store/memstore"
	"github.com/fleetctl/core/internal/tools"
)

type fakeDelegator struct{}

func (fakeDelegator) DelegateTaskWithSpawn(ctx context.Context, req orchestrator.DelegateRequest) (orchestrator.DelegateResult, error) {
	return orchestrator.DelegateResult{}, nil
}

func (fakeDelegator) HandleReportSubmitted(ctx context.Context, childAgentID string, report orchestrator.Report) {
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := memstore.New()
	ep := tools.New(tools.Config{Store: st, Delegator: fakeDelegator{}})
	r := mux.NewRouter()
	ep.Register(r)
	return httptest.NewServer(r)
}

func postTool(t *testing.T, srv *httptest.Server, name string, body any) (int, tools.Result) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/tools/"+name, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var res tools.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return resp.StatusCode, res
}

func TestCreateTaskThenListTasksRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	status, res := postTool(t, srv, "create_task", map[string]any{
		"title":       "fix flaky test",
		"objective":   "stabilize the suite",
		"workspaceId": "ws-1",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, res.Success)

	status, res = postTool(t, srv, "list_tasks", map[string]any{"workspaceId": "ws-1"})
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, res.Success)
	tasks, ok := res.Data.([]any)
	require.True(t, ok)
	assert.Len(t, tasks, 1)
}

func TestCreateTaskMissingRequiredFieldsFails(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	status, res := postTool(t, srv, "create_task", map[string]any{"title": "no objective"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestUnknownToolNameReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	status, res := postTool(t, srv, "delete_universe", map[string]any{})
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "TOOL_NOT_AUTHORIZED")
}

func TestMalformedJSONBodyReturnsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tools/create_task", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
