package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs",
		Long: `Show recent runs recorded in the history database, newest first.
With a run id, show the tasks of that run in execution order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: historyCommand,
	}
	cmd.Flags().String("config", config.ProjectFile, "Path to the project configuration file")
	cmd.Flags().Int("limit", 10, "Maximum number of runs to show")
	return cmd
}

// historyCommand implements the history command logic
func historyCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if cfg.RunHistory == "" {
		return fmt.Errorf("run history is disabled (run_history is empty)")
	}

	store, err := history.Open(historyPath(filepath.Dir(configPath), cfg.RunHistory))
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		records, err := store.RunTasks(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("no run with id %s", args[0])
		}
		for _, rec := range records {
			status := "ok"
			if !rec.Success {
				status = "FAILED: " + rec.Error
			}
			fmt.Fprintf(out, "%s  %-22s %-10s %s\n",
				rec.Started.Format(time.RFC3339), rec.Task, rec.Duration.Round(time.Millisecond), status)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	for _, run := range runs {
		status := "ok"
		if run.Failed > 0 {
			status = fmt.Sprintf("%d failed", run.Failed)
		}
		fmt.Fprintf(out, "%s  %s  %2d task(s)  %s\n",
			run.RunID, run.Started.Format("2006-01-02 15:04:05"), run.Tasks, status)
	}
	return nil
}
