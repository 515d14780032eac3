package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type specialistStore Store

func (s *specialistStore) Upsert(ctx context.Context, sp domain.Specialist) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specialists[sp.ID] = sp
	return nil
}

func (s *specialistStore) Get(ctx context.Context, id string) (domain.Specialist, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.Specialist{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.specialists[id]
	if !ok {
		return domain.Specialist{}, store.ErrNotFound
	}
	return sp, nil
}

func (s *specialistStore) List(ctx context.Context) ([]domain.Specialist, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Specialist, 0, len(s.specialists))
	for _, sp := range s.specialists {
		out = append(out, sp)
	}
	return out, nil
}
