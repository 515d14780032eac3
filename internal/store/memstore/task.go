package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/apierr"
	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type taskStore Store

func (s *taskStore) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Version == 0 {
		t.Version = 1
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *taskStore) Get(ctx context.Context, id string) (domain.Task, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Task{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (s *taskStore) ListByWorkspace(ctx context.Context, workspaceID string, filter store.TaskFilter) ([]domain.Task, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.WorkspaceID != workspaceID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.AssignedTo != "" && t.AssignedTo != filter.AssignedTo {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// AtomicUpdate applies mutate iff the stored task's Version matches
// expectedVersion, then increments Version. On mismatch it returns an
// apierr.KindVersionConflict error without applying mutate.
func (s *taskStore) AtomicUpdate(ctx context.Context, id string, expectedVersion int, mutate func(*domain.Task)) (domain.Task, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, store.ErrNotFound
	}
	if t.Version != expectedVersion {
		return domain.Task{}, apierr.Newf(apierr.KindVersionConflict,
			"task %s has version %d, expected %d", id, t.Version, expectedVersion)
	}
	mutate(&t)
	t.Version++
	s.tasks[id] = t
	return t, nil
}

func (s *taskStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			delete(s.tasks, id)
		}
	}
	return nil
}
