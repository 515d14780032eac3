package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type agentStore Store

func (s *agentStore) Create(ctx context.Context, a domain.Agent) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *agentStore) Get(ctx context.Context, id string) (domain.Agent, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Agent{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return domain.Agent{}, store.ErrNotFound
	}
	return a, nil
}

func (s *agentStore) Update(ctx context.Context, a domain.Agent) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; !ok {
		return store.ErrNotFound
	}
	s.agents[a.ID] = a
	return nil
}

func (s *agentStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Agent
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *agentStore) ListChildren(ctx context.Context, parentID string) ([]domain.Agent, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Agent
	for _, a := range s.agents {
		if a.ParentID == parentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *agentStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.agents {
		if a.WorkspaceID == workspaceID {
			delete(s.agents, id)
		}
	}
	return nil
}
