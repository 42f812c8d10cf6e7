package provision

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type compensatingAction struct {
	name string
	fn   func(context.Context) error
}

// Rollback is the stack of compensating actions for one migration attempt.
// Actions are appended immediately after each successful remote creation and
// fire at most once, in reverse registration order, on the first unhandled
// failure in the attempt. An action's own failure is logged and swallowed so
// the remaining actions still run.
type Rollback struct {
	mu      sync.Mutex
	actions []compensatingAction
	fired   bool
}

func NewRollback() *Rollback {
	return &Rollback{}
}

// Add registers a compensating action.
func (r *Rollback) Add(name string, fn func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, compensatingAction{name: name, fn: fn})
}

// Run executes all registered actions in reverse order. Subsequent calls are
// no-ops.
func (r *Rollback) Run(ctx context.Context) {
	r.mu.Lock()
	if r.fired {
		r.mu.Unlock()
		return
	}
	r.fired = true
	actions := r.actions
	r.mu.Unlock()

	for i := len(actions) - 1; i >= 0; i-- {
		zap.S().Named("rollback").Infof("running compensating action: %s", actions[i].name)
		if err := actions[i].fn(ctx); err != nil {
			zap.S().Named("rollback").Errorf("compensating action %s failed: %v", actions[i].name, err)
		}
	}
}

// Discard drops all registered actions without running them, for the success
// path where ownership of the created objects transfers to the caller.
func (r *Rollback) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = true
	r.actions = nil
}
