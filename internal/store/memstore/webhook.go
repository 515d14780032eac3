package memstore

import (
	"context"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/store"
)

type webhookConfigStore Store

func (s *webhookConfigStore) Upsert(ctx context.Context, c domain.WebhookConfig) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookConfigs[c.ID] = c
	return nil
}

func (s *webhookConfigStore) Get(ctx context.Context, id string) (domain.WebhookConfig, error) {
	if err := checkCtx(ctx); err != nil {
		return domain.WebhookConfig{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.webhookConfigs[id]
	if !ok {
		return domain.WebhookConfig{}, store.ErrNotFound
	}
	return c, nil
}

func (s *webhookConfigStore) ListByRepo(ctx context.Context, repo string) ([]domain.WebhookConfig, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WebhookConfig
	for _, c := range s.webhookConfigs {
		if c.Repo == repo {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *webhookConfigStore) ListEnabled(ctx context.Context) ([]domain.WebhookConfig, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WebhookConfig
	for _, c := range s.webhookConfigs {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

type webhookLogStore Store

func (s *webhookLogStore) Append(ctx context.Context, l domain.WebhookTriggerLog) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookLogs[l.ConfigID] = append(s.webhookLogs[l.ConfigID], l)
	return nil
}

// ListByConfig returns the most recent limit log entries for configID, newest
// last (insertion order), matching Append's append-only ordering.
func (s *webhookLogStore) ListByConfig(ctx context.Context, configID string, limit int) ([]domain.WebhookTriggerLog, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.webhookLogs[configID]
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]domain.WebhookTriggerLog, len(src))
	copy(out, src)
	return out, nil
}
