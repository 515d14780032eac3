// Package memstore is the in-memory Persistence Façade backend. It is safe
// for concurrent use and is the only backend required for tests, grounded
// on registry/store/memory's sync.RWMutex-guarded map pattern.
package memstore

import (
	"context"
	"sync"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

// Store is the in-memory Facade implementation. The zero value is not
// usable; construct with New.
type Store struct {
	mu sync.RWMutex

	workspaces   map[string]domain.Workspace
	codebases    map[string]domain.Codebase
	agents       map[string]domain.Agent
	tasks        map[string]domain.Task
	notes        map[string]domain.Note // key: workspaceID + "/" + id
	messages     map[string][]domain.Message
	acpSessions  map[string]domain.ACPSession
	backgroundTasks map[string]domain.BackgroundTask
	workflowRuns map[string]domain.WorkflowRun
	webhookConfigs map[string]domain.WebhookConfig
	webhookLogs  map[string][]domain.WebhookTriggerLog
	specialists  map[string]domain.Specialist
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		workspaces:      make(map[string]domain.Workspace),
		codebases:       make(map[string]domain.Codebase),
		agents:          make(map[string]domain.Agent),
		tasks:           make(map[string]domain.Task),
		notes:           make(map[string]domain.Note),
		messages:        make(map[string][]domain.Message),
		acpSessions:     make(map[string]domain.ACPSession),
		backgroundTasks: make(map[string]domain.BackgroundTask),
		workflowRuns:    make(map[string]domain.WorkflowRun),
		webhookConfigs:  make(map[string]domain.WebhookConfig),
		webhookLogs:     make(map[string][]domain.WebhookTriggerLog),
		specialists:     make(map[string]domain.Specialist),
	}
}

var _ store.Facade = (*Store)(nil)

func (s *Store) Workspaces() store.Workspaces             { return (*workspaceStore)(s) }
func (s *Store) Codebases() store.Codebases               { return (*codebaseStore)(s) }
func (s *Store) Agents() store.Agents                     { return (*agentStore)(s) }
func (s *Store) Tasks() store.Tasks                       { return (*taskStore)(s) }
func (s *Store) Notes() store.Notes                       { return (*noteStore)(s) }
func (s *Store) Messages() store.Messages                 { return (*messageStore)(s) }
func (s *Store) ACPSessions() store.ACPSessions           { return (*acpSessionStore)(s) }
func (s *Store) BackgroundTasks() store.BackgroundTasks   { return (*backgroundTaskStore)(s) }
func (s *Store) WorkflowRuns() store.WorkflowRuns         { return (*workflowRunStore)(s) }
func (s *Store) WebhookConfigs() store.WebhookConfigs     { return (*webhookConfigStore)(s) }
func (s *Store) WebhookTriggerLogs() store.WebhookTriggerLogs { return (*webhookLogStore)(s) }
func (s *Store) Specialists() store.Specialists           { return (*specialistStore)(s) }

// Close releases no resources; the in-memory backend has nothing to close.
func (s *Store) Close(ctx context.Context) error { return nil }

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func noteKey(workspaceID, id string) string { return workspaceID + "/" + id }
