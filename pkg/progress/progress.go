// Package progress provides named, nestable task spans for long-running
// migration steps. Spans are observability only: they never affect control
// flow, and a warning recorded on a span does not fail the task.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one span. Sub-spans share the root's warning sink so a caller can
// inspect everything recorded during an attempt.
type Task struct {
	name   string
	logger *zap.SugaredLogger
	start  time.Time

	mu       *sync.Mutex
	warnings *[]string
}

// New opens a root span.
func New(name string) *Task {
	warnings := []string{}
	t := &Task{
		name:     name,
		logger:   zap.S().Named(name),
		start:    time.Now(),
		mu:       &sync.Mutex{},
		warnings: &warnings,
	}
	t.logger.Infof("started")
	return t
}

// Sub opens a nested span under t.
func (t *Task) Sub(name string) *Task {
	s := &Task{
		name:     t.name + "/" + name,
		logger:   t.logger.Named(name),
		start:    time.Now(),
		mu:       t.mu,
		warnings: t.warnings,
	}
	s.logger.Infof("started")
	return s
}

// Infof records a progress message on the span.
func (t *Task) Infof(format string, args ...any) {
	t.logger.Infof(format, args...)
}

// Warnf records a non-fatal warning on the span.
func (t *Task) Warnf(format string, args ...any) {
	t.logger.Warnf(format, args...)
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.warnings = append(*t.warnings, t.name)
}

// Done closes the span.
func (t *Task) Done() {
	t.logger.Infof("done in %s", time.Since(t.start).Round(time.Millisecond))
}

// Warnings lists the span names that recorded a warning anywhere under the
// root this span belongs to.
func (t *Task) Warnings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(*t.warnings))
	copy(out, *t.warnings)
	return out
}
