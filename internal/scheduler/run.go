package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task execution states within a run.
const (
	stateNotStarted = iota
	stateRunning
	stateCompleted
)

// Logger receives run progress events. Implementations must tolerate being
// called for every task, including bodiless grouping tasks.
type Logger interface {
	TaskStart(run *Run, task string)
	TaskDone(run *Run, task string, d time.Duration)
}

// Run is one invocation of the scheduler. It tracks which tasks already
// executed so a task reached through several prerequisite edges runs exactly
// once. Runs are not persisted and not safe for concurrent use; exactly one
// task body executes at a time.
type Run struct {
	// ID uniquely identifies this run in logs and the history store.
	ID string
	// Order lists the task names in the order their bodies ran.
	Order []string

	registry *Registry
	states   map[string]int
	logger   Logger
}

// NewRun prepares a run over the given registry. logger may be nil.
func NewRun(registry *Registry, logger Logger) *Run {
	return &Run{
		ID:       uuid.NewString(),
		registry: registry,
		states:   make(map[string]int),
		logger:   logger,
	}
}

// Execute runs the named task after recursively completing its
// prerequisites, each at most once per run. A task body error aborts the
// whole run; completed tasks are not rolled back.
func (r *Run) Execute(ctx context.Context, name string) error {
	task, err := r.registry.Lookup(name)
	if err != nil {
		return err
	}

	switch r.states[name] {
	case stateCompleted:
		// Already satisfied through another prerequisite edge.
		return nil
	case stateRunning:
		// Re-entering a running task means its prerequisites loop back to
		// it. Fail immediately rather than recurse forever.
		return &CycleError{Path: []string{name, name}}
	}

	r.states[name] = stateRunning
	for _, dep := range task.Deps {
		if err := r.Execute(ctx, dep); err != nil {
			return err
		}
	}

	if r.logger != nil {
		r.logger.TaskStart(r, name)
	}
	started := time.Now()
	if task.Body != nil {
		if err := task.Body(ctx); err != nil {
			return &TaskError{Task: name, Err: err}
		}
	}
	if r.logger != nil {
		r.logger.TaskDone(r, name, time.Since(started))
	}

	r.states[name] = stateCompleted
	r.Order = append(r.Order, name)
	return nil
}

// Plan returns the order in which Execute would run task bodies for the
// named root, without executing anything.
func (r *Run) Plan(name string) ([]string, error) {
	var order []string
	states := make(map[string]int)

	var walk func(name string) error
	walk = func(name string) error {
		task, err := r.registry.Lookup(name)
		if err != nil {
			return err
		}
		switch states[name] {
		case stateCompleted:
			return nil
		case stateRunning:
			return &CycleError{Path: []string{name, name}}
		}
		states[name] = stateRunning
		for _, dep := range task.Deps {
			if err := walk(dep); err != nil {
				return err
			}
		}
		states[name] = stateCompleted
		order = append(order, name)
		return nil
	}

	if err := walk(name); err != nil {
		return nil, err
	}
	return order, nil
}
