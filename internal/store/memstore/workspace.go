package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type workspaceStore Store

func (s *workspaceStore) Create(ctx context.Context, w domain.Workspace) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[w.ID] = w
	return nil
}

func (s *workspaceStore) Get(ctx context.Context, id string) (domain.Workspace, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Workspace{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workspaces[id]
	if !ok {
		return domain.Workspace{}, store.ErrNotFound
	}
	return w, nil
}

func (s *workspaceStore) Update(ctx context.Context, w domain.Workspace) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[w.ID]; !ok {
		return store.ErrNotFound
	}
	s.workspaces[w.ID] = w
	return nil
}

// Delete cascades to every entity scoped to this workspace, per the
// Workspace entity's cascade invariant.
func (s *workspaceStore) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.workspaces[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.workspaces, id)
	for cid, c := range s.codebases {
		if c.WorkspaceID == id {
			delete(s.codebases, cid)
		}
	}
	for aid, a := range s.agents {
		if a.WorkspaceID == id {
			delete(s.agents, aid)
		}
	}
	for tid, t := range s.tasks {
		if t.WorkspaceID == id {
			delete(s.tasks, tid)
		}
	}
	for nid, n := range s.notes {
		if n.WorkspaceID == id {
			delete(s.notes, nid)
		}
	}
	for sid, sess := range s.acpSessions {
		if sess.WorkspaceID == id {
			delete(s.acpSessions, sid)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *workspaceStore) List(ctx context.Context) ([]domain.Workspace, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, w)
	}
	return out, nil
}
