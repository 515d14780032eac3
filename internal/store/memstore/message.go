package memstore

import (
	"context"
	"sort"

	"github.com/fleetctl/core/internal/domain"
)

type messageStore Store

func (s *messageStore) Append(ctx context.Context, m domain.Message) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.AgentID] = append(s.messages[m.AgentID], m)
	return nil
}

// ListByAgent returns the agent's transcript ordered by Timestamp ascending,
// trimmed to the most recent limit entries (limit <= 0 means unbounded).
func (s *messageStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.Message, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	src := s.messages[agentID]
	out := make([]domain.Message, len(src))
	copy(out, src)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
