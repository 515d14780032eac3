package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type codebaseStore Store

func (s *codebaseStore) Create(ctx context.Context, c domain.Codebase) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codebases[c.ID] = c
	return nil
}

func (s *codebaseStore) Get(ctx context.Context, id string) (domain.Codebase, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Codebase{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codebases[id]
	if !ok {
		return domain.Codebase{}, store.ErrNotFound
	}
	return c, nil
}

func (s *codebaseStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Codebase, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Codebase
	for _, c := range s.codebases {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *codebaseStore) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codebases[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.codebases, id)
	return nil
}

func (s *codebaseStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.codebases {
		if c.WorkspaceID == workspaceID {
			delete(s.codebases, id)
		}
	}
	return nil
}
