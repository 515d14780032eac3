// Package inmem provides a goroutine-backed engine.Engine for local
// development and tests, grounded on
// runtime/agent/engine/inmem/engine.go's in-process, non-replay-safe
// execution model.
package inmem

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/fleetctl/core/internal/engine"
)

type eng struct{}

// New returns an Engine that runs each group's steps concurrently via
// errgroup, and groups sequentially. Not durable: a process restart loses
// all in-flight group state, which is acceptable for local/dev use and
// mirrors the teacher's inmem engine's own documented limitation.
func New() engine.Engine {
	return &eng{}
}

func (e *eng) RunGroups(ctx context.Context, groups [][]engine.StepRequest, exec engine.StepFunc) ([]engine.StepResult, error) {
	var all []engine.StepResult
	for _, group := range groups {
		results := make([]engine.StepResult, len(group))
		g, gctx := errgroup.WithContext(ctx)
		for i, step := range group {
			i, step := i, step
			g.Go(func() error {
				results[i] = exec(gctx, step)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return all, err
		}
		all = append(all, results...)
		for _, r := range results {
			if r.Failed {
				return all, nil
			}
		}
	}
	return all, nil
}
