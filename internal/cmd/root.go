// Package cmd wires the drover command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for drover
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drover",
		Short: "Configurable development workflow runner",
		Long: `Drover runs a project's development workflow: environment setup,
in-place builds, linting, testing, packaging and deployment.

Tasks form a dependency graph and run each at most once per invocation.
The tools behind each task are declared in configuration (.drover.yaml),
layered on top of shipped defaults and DROVER_* environment variables.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
