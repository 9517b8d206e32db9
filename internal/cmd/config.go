package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/callum/drover/internal/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the merged configuration as YAML: built-in defaults, shipped
defaults, the project file and DROVER_* environment variables, plus the
fields computed from the repository state (environment paths, git
version information).`,
		Args: cobra.NoArgs,
		RunE: configCommand,
	}
	cmd.Flags().String("config", config.ProjectFile, "Path to the project configuration file")
	cmd.Flags().Bool("raw", false, "Skip finalization and print only the merged layers")
	return cmd
}

// configCommand implements the config command logic
func configCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dir := filepath.Dir(configPath)

	cfg, err := config.LoadFile(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if raw, _ := cmd.Flags().GetBool("raw"); !raw {
		if err := cfg.Finalize(config.FinalizeOptions{
			Dir:      dir,
			GitQuery: gitQueryer(cmd.Context(), dir),
		}); err != nil {
			return err
		}
	}

	rendered, err := cfg.EffectiveYAML()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}
