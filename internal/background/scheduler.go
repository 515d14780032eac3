package background

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/telemetry"
)

// Scheduler drives the Background Task Engine's schedule trigger source:
// each registered ScheduleDefinition enqueues a BackgroundTask on its own
// 6-field (seconds-precision) cron expression. Grounded on
// houzhh15-mote/internal/cron's robfig/cron/v3 Scheduler (entries map keyed
// by job name, an executing sync.Map guarding against overlapping runs of
// the same job).
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	log     telemetry.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	defs    map[string]domain.ScheduleDefinition

	executing sync.Map // schedule id -> struct{}, present while a run is in flight
}

// NewScheduler builds a Scheduler that enqueues onto engine.
func NewScheduler(engine *Engine, log telemetry.Logger) *Scheduler {
	if log == nil {
		log, _, _ = telemetry.Noop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		engine:  engine,
		log:     log,
		entries: make(map[string]cron.EntryID),
		defs:    make(map[string]domain.ScheduleDefinition),
	}
}

// Start begins the underlying cron dispatcher. Schedules registered via Add
// before or after Start take effect immediately.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the dispatcher and waits for in-flight jobs per robfig/cron's
// own Stop contract; it does not cancel a run already in progress.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// Add registers def's cron expression, replacing any prior registration
// sharing def.ID. A disabled definition is stored but never scheduled.
func (s *Scheduler) Add(def domain.ScheduleDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[def.ID]; ok {
		s.cron.Remove(id)
		delete(s.entries, def.ID)
	}
	s.defs[def.ID] = def
	if !def.Enabled {
		return nil
	}

	entryID, err := s.cron.AddFunc(def.CronExpr, func() { s.run(def.ID) })
	if err != nil {
		return fmt.Errorf("register schedule %q: %w", def.ID, err)
	}
	s.entries[def.ID] = entryID
	return nil
}

// Remove unregisters a schedule definition.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.defs, id)
}

// run enqueues one BackgroundTask for the schedule, skipping if the
// previous firing is still in flight.
func (s *Scheduler) run(id string) {
	if _, already := s.executing.LoadOrStore(id, struct{}{}); already {
		s.log.Warn(context.Background(), "schedule skipped, previous run still active", "scheduleId", id)
		return
	}
	defer s.executing.Delete(id)

	s.mu.Lock()
	def, ok := s.defs[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	_, err := s.engine.Enqueue(ctx, domain.BackgroundTask{
		Title:         def.Name,
		Prompt:        def.Prompt,
		Specialist:    def.Specialist,
		WorkspaceID:   def.WorkspaceID,
		TriggerSource: domain.TriggerSchedule,
		Priority:      def.Priority,
	})
	if err != nil {
		s.log.Error(ctx, "scheduled task enqueue failed", "scheduleId", id, "error", err.Error())
	}
}
