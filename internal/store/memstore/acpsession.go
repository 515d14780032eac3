package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type acpSessionStore Store

func (s *acpSessionStore) Upsert(ctx context.Context, sess domain.ACPSession) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acpSessions[sess.ID] = sess
	return nil
}

func (s *acpSessionStore) Get(ctx context.Context, id string) (domain.ACPSession, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.ACPSession{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.acpSessions[id]
	if !ok {
		return domain.ACPSession{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *acpSessionStore) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.acpSessions, id)
	return nil
}
