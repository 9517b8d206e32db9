package scheduler

import "fmt"

// Registry holds all declared tasks. It is populated once at startup and
// read-only while a run executes.
type Registry struct {
	tasks       map[string]*Task
	order       []string
	defaultName string
}

// NewRegistry returns an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Add declares a task. Names must be unique and at most one task may be
// marked default. Prerequisites may reference tasks declared later; they are
// checked by Validate.
func (r *Registry) Add(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("task with empty name")
	}
	if _, exists := r.tasks[task.Name]; exists {
		return fmt.Errorf("task %q declared twice", task.Name)
	}
	if task.Default {
		if r.defaultName != "" {
			return fmt.Errorf("tasks %q and %q both marked default", r.defaultName, task.Name)
		}
		r.defaultName = task.Name
	}
	t := task
	r.tasks[task.Name] = &t
	r.order = append(r.order, task.Name)
	return nil
}

// MustAdd is Add for static task tables, panicking on declaration bugs.
func (r *Registry) MustAdd(task Task) {
	if err := r.Add(task); err != nil {
		panic(err)
	}
}

// Lookup returns the named task.
func (r *Registry) Lookup(name string) (*Task, error) {
	task, found := r.tasks[name]
	if !found {
		return nil, &UnknownTaskError{Name: name}
	}
	return task, nil
}

// Default returns the distinguished default task.
func (r *Registry) Default() (*Task, error) {
	if r.defaultName == "" {
		return nil, fmt.Errorf("no default task declared")
	}
	return r.tasks[r.defaultName], nil
}

// Names returns all task names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks the whole graph: every prerequisite must exist, the graph
// must be acyclic and exactly one task must be the default. Runs detect
// cycles too, but Validate reports authoring errors before anything executes.
func (r *Registry) Validate() error {
	for _, name := range r.order {
		for _, dep := range r.tasks[name].Deps {
			if _, exists := r.tasks[dep]; !exists {
				return fmt.Errorf("task %q depends on unknown task %q", name, dep)
			}
		}
	}
	if r.defaultName == "" {
		return fmt.Errorf("no default task declared")
	}

	// DFS with a visiting marker set, the standard three-color walk.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(r.tasks))
	var stack []string

	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		colors[name] = gray
		stack = append(stack, name)
		for _, dep := range r.tasks[name].Deps {
			switch colors[dep] {
			case gray:
				return cycleFrom(stack, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[name] = black
		return nil
	}

	for _, name := range r.order {
		if colors[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleFrom extracts the closed cycle from the visiting stack.
func cycleFrom(stack []string, repeat string) *CycleError {
	start := 0
	for i, name := range stack {
		if name == repeat {
			start = i
			break
		}
	}
	path := append([]string{}, stack[start:]...)
	path = append(path, repeat)
	return &CycleError{Path: path}
}
