package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type noteStore Store

func (s *noteStore) Upsert(ctx context.Context, n domain.Note) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[noteKey(n.WorkspaceID, n.ID)] = n
	return nil
}

func (s *noteStore) Get(ctx context.Context, workspaceID, id string) (domain.Note, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Note{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[noteKey(workspaceID, id)]
	if !ok {
		return domain.Note{}, store.ErrNotFound
	}
	return n, nil
}

func (s *noteStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Note, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Note
	for _, n := range s.notes {
		if n.WorkspaceID == workspaceID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *noteStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, n := range s.notes {
		if n.WorkspaceID == workspaceID {
			delete(s.notes, k)
		}
	}
	return nil
}
