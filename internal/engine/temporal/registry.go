package temporal

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"

	"github.com/fleetctl/core/internal/engine"
	"github.com/google/uuid"
)

// stepRegistry maps a run-scoped token to the engine.StepFunc supplied to
// that RunGroups call. Temporal activities can only be registered once,
// ahead of time, with the worker; the actual closure a given run wants to
// execute is only known at RunGroups time, so activity invocations look it
// up here by token rather than by a statically registered function value.
type stepRegistry struct {
	mu    sync.Mutex
	funcs map[string]engine.StepFunc
}

func newStepRegistry() *stepRegistry {
	return &stepRegistry{funcs: make(map[string]engine.StepFunc)}
}

func (r *stepRegistry) register(fn engine.StepFunc) string {
	token := uuid.NewString()
	r.mu.Lock()
	r.funcs[token] = fn
	r.mu.Unlock()
	return token
}

func (r *stepRegistry) unregister(token string) {
	r.mu.Lock()
	delete(r.funcs, token)
	r.mu.Unlock()
}

func (r *stepRegistry) invoke(ctx context.Context, token string, req engine.StepRequest) (engine.StepResult, error) {
	r.mu.Lock()
	fn, ok := r.funcs[token]
	r.mu.Unlock()
	if !ok {
		return engine.StepResult{}, fmt.Errorf("temporal engine: no step function registered for token %q (worker restarted mid-run?)", token)
	}
	return fn(ctx, req), nil
}

func activityRegisterOptions(name string) activity.RegisterOptions {
	return activity.RegisterOptions{Name: name}
}
