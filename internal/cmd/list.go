package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/logger"
	"github.com/callum/drover/internal/workflow"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available tasks",
		Long: `List every task with its prerequisites. The default task, run when
no task argument is given, is marked with an asterisk.`,
		Args: cobra.NoArgs,
		RunE: listCommand,
	}
	cmd.Flags().String("config", config.ProjectFile, "Path to the project configuration file")
	return cmd
}

// listCommand implements the list command logic
func listCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(configPath, os.Getenv)
	if err != nil {
		return err
	}

	// The graph shape only depends on the configuration, so listing does not
	// need git or a finalized config.
	wf := workflow.NewContext(cfg, nil, logger.NewConsoleLogger(nil, "info"), filepath.Dir(configPath))
	registry := wf.Tasks()

	out := cmd.OutOrStdout()
	for _, name := range registry.Names() {
		task, err := registry.Lookup(name)
		if err != nil {
			return err
		}
		marker := " "
		if task.Default {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-22s %s\n", marker, task.Name, task.Doc)
		if len(task.Deps) > 0 {
			fmt.Fprintf(out, "  %-22s needs: %s\n", "", strings.Join(task.Deps, ", "))
		}
	}
	return nil
}
