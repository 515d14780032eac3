package session

import (
	"context"
	"sync"
	"testing"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noopLog, _, _ = telemetry.Noop()

type fakeAdapter struct {
	mu    sync.Mutex
	alive bool
	dead  bool
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{alive: true} }

func (f *fakeAdapter) Start(ctx context.Context) error      { return nil }
func (f *fakeAdapter) Initialize(ctx context.Context) error { return nil }
func (f *fakeAdapter) NewSession(ctx context.Context, cwd string, opts adapter.SessionOptions) (string, error) {
	return "provider-session-1", nil
}
func (f *fakeAdapter) Prompt(ctx context.Context, sessionID, text string) error { return nil }
func (f *fakeAdapter) SetMode(ctx context.Context, sessionID, modeID string) error { return nil }
func (f *fakeAdapter) Cancel(ctx context.Context, sessionID string) error       { return nil }
func (f *fakeAdapter) Kill(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	return nil
}
func (f *fakeAdapter) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

type fakeACPStore struct {
	mu   sync.Mutex
	recs map[string]domain.ACPSession
}

func newFakeACPStore() *fakeACPStore { return &fakeACPStore{recs: make(map[string]domain.ACPSession)} }

func (s *fakeACPStore) Upsert(ctx context.Context, rec domain.ACPSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *fakeACPStore) Get(ctx context.Context, id string) (domain.ACPSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return domain.ACPSession{}, apierr.New(apierr.KindColdStartImpossible, "not found")
	}
	return rec, nil
}

func (s *fakeACPStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func TestCreateSessionReachesReady(t *testing.T) {
	acp := newFakeACPStore()
	var built []*fakeAdapter
	factory := func(ctx context.Context, provider string, handler adapter.NotificationHandler) (adapter.Adapter, error) {
		a := newFakeAdapter()
		built = append(built, a)
		return a, nil
	}
	m := New(acp, factory, noopLog)

	providerID, err := m.CreateSession(context.Background(), "sess-1", "jsonrpc", "ws-1", "/tmp", nil, adapter.SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "provider-session-1", providerID)

	infos := m.ListSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, StateReady, infos[0].State)

	_, err = acp.Get(context.Background(), "sess-1")
	assert.NoError(t, err)
}

func TestPromptTransitionsThroughActive(t *testing.T) {
	acp := newFakeACPStore()
	factory := func(ctx context.Context, provider string, handler adapter.NotificationHandler) (adapter.Adapter, error) {
		return newFakeAdapter(), nil
	}
	m := New(acp, factory, noopLog)
	_, err := m.CreateSession(context.Background(), "sess-1", "jsonrpc", "ws-1", "/tmp", nil, adapter.SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Prompt(context.Background(), "sess-1", "hello"))

	infos := m.ListSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, StateReady, infos[0].State)
}

func TestKillSessionRemovesFromRegistry(t *testing.T) {
	acp := newFakeACPStore()
	factory := func(ctx context.Context, provider string, handler adapter.NotificationHandler) (adapter.Adapter, error) {
		return newFakeAdapter(), nil
	}
	m := New(acp, factory, noopLog)
	_, err := m.CreateSession(context.Background(), "sess-1", "jsonrpc", "ws-1", "/tmp", nil, adapter.SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, m.KillSession(context.Background(), "sess-1"))
	assert.Empty(t, m.ListSessions())

	_, err = acp.Get(context.Background(), "sess-1")
	assert.Error(t, err)
}

func TestGetOrRecreateAdapterColdStarts(t *testing.T) {
	acp := newFakeACPStore()
	require.NoError(t, acp.Upsert(context.Background(), domain.ACPSession{
		ID: "sess-2", Provider: "jsonrpc", WorkspaceID: "ws-1", Cwd: "/tmp",
	}))
	factory := func(ctx context.Context, provider string, handler adapter.NotificationHandler) (adapter.Adapter, error) {
		return newFakeAdapter(), nil
	}
	m := New(acp, factory, noopLog)

	a, err := m.GetOrRecreateAdapter(context.Background(), "sess-2", nil)
	require.NoError(t, err)
	assert.True(t, a.Alive())
}

func TestSessionNotFound(t *testing.T) {
	m := New(newFakeACPStore(), nil, noopLog)
	_, err := m.GetAdapter("missing")
	require.Error(t, err)
	assert.Equal(t, apierr.KindSessionNotFound, apierr.KindOf(err))
}
