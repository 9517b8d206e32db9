// Package scheduler executes a static graph of named tasks.
//
// Tasks declare prerequisite tasks by name. A run drives prerequisites
// depth-first, left-to-right in declaration order, and guarantees every task
// body executes at most once per run. Execution is strictly sequential:
// task bodies may mutate shared state (configuration, the run environment
// overlay) and later tasks observe those mutations.
package scheduler

import "context"

// Body is the executable part of a task. A nil body is valid for grouping
// tasks that exist only for their prerequisites.
type Body func(ctx context.Context) error

// Task is a named, schedulable unit of work. Tasks are declared once at
// startup and never mutated afterwards.
type Task struct {
	// Name uniquely identifies the task.
	Name string
	// Doc is a one-line description shown by the task listing.
	Doc string
	// Deps names the prerequisite tasks, run in order before the body.
	Deps []string
	// Body runs after all prerequisites completed. May be nil.
	Body Body
	// Default marks the task run when the command line names none.
	// At most one task in a registry may be the default.
	Default bool
}
