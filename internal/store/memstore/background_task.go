package memstore

import (
	"context"
	"sort"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type backgroundTaskStore Store

func (s *backgroundTaskStore) Create(ctx context.Context, t domain.BackgroundTask) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backgroundTasks[t.ID] = t
	return nil
}

func (s *backgroundTaskStore) Get(ctx context.Context, id string) (domain.BackgroundTask, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.BackgroundTask{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.backgroundTasks[id]
	if !ok {
		return domain.BackgroundTask{}, store.ErrNotFound
	}
	return t, nil
}

func (s *backgroundTaskStore) Update(ctx context.Context, t domain.BackgroundTask) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.backgroundTasks[t.ID]; !ok {
		return store.ErrNotFound
	}
	s.backgroundTasks[t.ID] = t
	return nil
}

// ListReady returns PENDING tasks in workspaceID whose dependencies have all
// completed, ordered by Priority ascending then CreatedAt ascending.
func (s *backgroundTaskStore) ListReady(ctx context.Context, workspaceID string) ([]domain.BackgroundTask, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[string]domain.BackgroundTaskStatus, len(s.backgroundTasks))
	for id, t := range s.backgroundTasks {
		statuses[id] = t.Status
	}

	var out []domain.BackgroundTask
	for _, t := range s.backgroundTasks {
		if t.WorkspaceID != workspaceID {
			continue
		}
		if !t.Ready(statuses) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *backgroundTaskStore) ListRunning(ctx context.Context) ([]domain.BackgroundTask, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BackgroundTask
	for _, t := range s.backgroundTasks {
		if t.Status == domain.BackgroundRunning {
			out = append(out, t)
		}
	}
	return out, nil
}
