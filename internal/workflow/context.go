// Package workflow declares drover's task graph and implements the task
// bodies. Tasks sequence external tool commands: linting, building, testing,
// packaging and deployment, parameterized by the layered configuration.
package workflow

import (
	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/logger"
	"github.com/callum/drover/internal/shell"
	"github.com/callum/drover/internal/tool"
)

// Context carries the shared, mutable state of one run: the configuration,
// the tool registry, the process runner and the accumulated environment
// overlay. Exactly one task body executes at a time, so no locking is
// needed; a mutation is visible to every strictly later task.
type Context struct {
	Cfg    *config.Config
	Tools  *tool.Registry
	Runner shell.Runner
	Log    *logger.ConsoleLogger

	// Env accumulates exported variables across tool invocations. Later
	// packages see earlier packages' exports, so multi-package in-place
	// builds can link against freshly built artifacts.
	Env shell.Env

	// Dir is the project root.
	Dir string
}

// NewContext assembles the workflow context for a finalized configuration.
func NewContext(cfg *config.Config, runner shell.Runner, log *logger.ConsoleLogger, dir string) *Context {
	return &Context{
		Cfg:    cfg,
		Tools:  tool.NewRegistry(cfg.Tools),
		Runner: runner,
		Log:    log,
		Env: shell.Env{
			"PROJECT_VERSION": cfg.Git.TagVersion,
		},
		Dir: dir,
	}
}
