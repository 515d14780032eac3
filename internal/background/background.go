// Package background implements the Background Task Engine (spec §4.6): a
// persistent priority+dependency queue of detached agent invocations with
// no attached client stream, plus the Workflow DAG executor that fans a
// WorkflowDefinition's steps out into dependency-linked BackgroundTask rows.
//
// Grounded on the teacher's engine-pluggability split
// (runtime/agent/engine: Engine interface, inmem and temporal backends) for
// the DAG executor's group sequencing, and on registry/result_stream.go's
// Redis-backed cross-node coordination pattern for reservation locking, so
// multiple Background Task Engine processes can share one queue without
// double-claiming a task.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/bridge"
	"github.com/fleetctl/core/internal/domain"
	dagengine "github.com/fleetctl/core/internal/engine"
	"github.com/fleetctl/core/internal/engine/inmem"
	"github.com/fleetctl/core/internal/store"
	"github.com/fleetctl/core/internal/telemetry"
)

// DefaultOrphanThreshold is how long a RUNNING task may go without a
// ResultSessionID before the engine reclaims it (spec §4.6).
const DefaultOrphanThreshold = 5 * time.Minute

// DefaultMaxAttempts caps reclaim retries before a task is failed outright.
const DefaultMaxAttempts = 3

// SessionSpawner is the slice of the Agent Session Manager the engine needs
// to run a task's specialist session. Defined here (the consumer) rather
// than importing orchestrator.SessionSpawner, matching the rest of the
// tree's per-package interface ownership.
type SessionSpawner interface {
	CreateSession(ctx context.Context, sessionID, provider, workspaceID, cwd string, handler adapter.NotificationHandler, opts adapter.SessionOptions) (string, error)
	Prompt(ctx context.Context, sessionID, text string) error
}

// SpecialistResolver resolves a specialist name to its system prompt/model
// tier/provider defaults.
type SpecialistResolver interface {
	Resolve(ctx context.Context, specialist string) (domain.Specialist, error)
}

// Engine runs the priority+dependency queue and the Workflow DAG executor.
type Engine struct {
	store       store.Facade
	sessions    SessionSpawner
	specialists SpecialistResolver
	bridge      *bridge.Bridge
	lock        *ReservationLock
	dag         dagengine.Engine
	log         telemetry.Logger

	mu              sync.Mutex
	orphanThreshold time.Duration
	maxAttempts     int
	defaultCwd      string
	workerID        string
}

// Config bundles Engine's collaborators for New.
type Config struct {
	Store           store.Facade
	Sessions        SessionSpawner
	Specialists     SpecialistResolver
	Bridge          *bridge.Bridge
	Redis           *redis.Client
	DAG             dagengine.Engine
	Log             telemetry.Logger
	OrphanThreshold time.Duration
	MaxAttempts     int
	DefaultCwd      string
	WorkerID        string
}

// New builds an Engine. DAG defaults to the in-memory engine if nil.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log, _, _ = telemetry.Noop()
	}
	threshold := cfg.OrphanThreshold
	if threshold <= 0 {
		threshold = DefaultOrphanThreshold
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	dag := cfg.DAG
	if dag == nil {
		dag = inmem.New()
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + time.Now().UTC().Format("20060102T150405")
	}
	return &Engine{
		store:           cfg.Store,
		sessions:        cfg.Sessions,
		specialists:     cfg.Specialists,
		bridge:          cfg.Bridge,
		lock:            NewReservationLock(cfg.Redis),
		dag:             dag,
		log:             log,
		orphanThreshold: threshold,
		maxAttempts:     maxAttempts,
		defaultCwd:      cfg.DefaultCwd,
		workerID:        workerID,
	}
}

// Enqueue persists a new PENDING BackgroundTask.
func (e *Engine) Enqueue(ctx context.Context, t domain.BackgroundTask) (domain.BackgroundTask, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.BackgroundPending
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = e.maxAttempts
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	if err := e.store.BackgroundTasks().Create(ctx, t); err != nil {
		return domain.BackgroundTask{}, err
	}
	return t, nil
}
