// Package tool catalogs the named tools declared in configuration and
// resolves their command templates.
//
// A tool is a reusable bundle of command templates keyed by phase, plus
// metadata (requirements, exported variables, deployment rules). Phases are
// plain string tags, decoupling tool definitions from the task graph: the
// same tool can contribute commands to several tasks.
package tool

import (
	"fmt"
	"sort"

	"github.com/callum/drover/internal/config"
)

// Tool is one registered tool: a named configuration spec.
type Tool struct {
	Name string
	config.ToolSpec
}

// UnknownToolError reports a reference to a tool that was never registered.
type UnknownToolError struct {
	Name string
}

// Error implements the error interface for UnknownToolError.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Registry is the catalog of available tools, instantiated once from
// configuration before any task runs and read-only afterwards.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry builds the registry from the configured tool specs.
func NewRegistry(specs map[string]config.ToolSpec) *Registry {
	tools := make(map[string]*Tool, len(specs))
	for name, spec := range specs {
		tools[name] = &Tool{Name: name, ToolSpec: spec}
	}
	return &Registry{tools: tools}
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (*Tool, error) {
	tool, found := r.tools[name]
	if !found {
		return nil, &UnknownToolError{Name: name}
	}
	return tool, nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
