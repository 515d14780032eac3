package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type workflowRunStore Store

func (s *workflowRunStore) Create(ctx context.Context, r domain.WorkflowRun) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflowRuns[r.ID] = r
	return nil
}

func (s *workflowRunStore) Get(ctx context.Context, id string) (domain.WorkflowRun, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.WorkflowRun{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.workflowRuns[id]
	if !ok {
		return domain.WorkflowRun{}, store.ErrNotFound
	}
	return r, nil
}

func (s *workflowRunStore) Update(ctx context.Context, r domain.WorkflowRun) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflowRuns[r.ID]; !ok {
		return store.ErrNotFound
	}
	s.workflowRuns[r.ID] = r
	return nil
}
