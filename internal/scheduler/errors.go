package scheduler

import (
	"fmt"
	"strings"
)

// UnknownTaskError reports a request for a task name that was never declared.
type UnknownTaskError struct {
	Name string
}

// Error implements the error interface for UnknownTaskError.
func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task %q", e.Name)
}

// CycleError reports a prerequisite cycle in the task graph. The graph is
// static, so a cycle is always an authoring bug and never recoverable.
type CycleError struct {
	// Path is the chain of task names that closes the cycle; the first and
	// last entries are the same task.
	Path []string
}

// Error implements the error interface for CycleError.
func (e *CycleError) Error() string {
	return fmt.Sprintf("task dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// TaskError wraps a failure raised by a task body, naming the task.
type TaskError struct {
	Task string
	Err  error
}

// Error implements the error interface for TaskError.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

// Unwrap exposes the underlying failure for errors.Is/As.
func (e *TaskError) Unwrap() error {
	return e.Err
}
