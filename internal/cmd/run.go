package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/gitversion"
	"github.com/callum/drover/internal/history"
	"github.com/callum/drover/internal/logger"
	"github.com/callum/drover/internal/scheduler"
	"github.com/callum/drover/internal/shell"
	"github.com/callum/drover/internal/workflow"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a workflow task and its prerequisites",
		Long: `Run a workflow task after completing its prerequisites, each at most
once. Without an argument the default task runs, which is the full
pipeline: lint, build in place, test, and deploy when enabled.

Examples:
  # Full pipeline
  drover run

  # One task and its prerequisites
  drover run test-inplace

  # Show what would run, in order, without running anything
  drover run --dry-run

  # Enable deployment for this invocation
  drover run --deploy

  # Force the virtualenv backend
  drover run --env venv build-inplace`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", config.ProjectFile, "Path to the project configuration file")
	cmd.Flags().Bool("deploy", false, "Enable deployment (overrides config)")
	cmd.Flags().Bool("no-deploy", false, "Disable deployment (overrides config)")
	cmd.Flags().String("env", "", "Test environment backend: conda, venv or none (overrides config)")
	cmd.Flags().Bool("dry-run", false, "Print the planned task order without executing")
	cmd.Flags().Bool("verbose", false, "Show debug output")
	cmd.Flags().Bool("quiet", false, "Only show warnings and errors")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dir := filepath.Dir(configPath)

	cfg, err := config.LoadFile(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Finalize(config.FinalizeOptions{
		Dir:      dir,
		GitQuery: gitQueryer(cmd.Context(), dir),
	}); err != nil {
		return err
	}

	log := logger.NewConsoleLogger(cmd.OutOrStdout(), logLevel(cmd))
	runner := &shell.ExecRunner{}
	wf := workflow.NewContext(cfg, runner, log, dir)

	registry := wf.Tasks()
	if err := registry.Validate(); err != nil {
		return err
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	} else {
		task, err := registry.Default()
		if err != nil {
			return err
		}
		name = task.Name
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		order, err := scheduler.NewRun(registry, nil).Plan(name)
		if err != nil {
			return err
		}
		for _, task := range order {
			fmt.Fprintln(cmd.OutOrStdout(), task)
		}
		return nil
	}

	runLog := scheduler.Logger(log)
	var store *history.Store
	if cfg.RunHistory != "" {
		store, err = history.Open(historyPath(dir, cfg.RunHistory))
		if err != nil {
			// History is bookkeeping; a broken database must not block the
			// run itself.
			log.Warnf("run history disabled: %v", err)
		} else {
			defer store.Close()
			runLog = &recordingLogger{next: log, store: store, ctx: cmd.Context(), log: log}
		}
	}

	run := scheduler.NewRun(registry, runLog)
	started := time.Now()
	execErr := run.Execute(cmd.Context(), name)
	if execErr != nil {
		recordFailure(cmd.Context(), store, run, execErr, log)
		return execErr
	}
	log.Infof("run %s completed %d task(s) in %s", run.ID, len(run.Order), time.Since(started).Round(time.Millisecond))
	return nil
}

// applyRunFlags folds the run flag overrides into the configuration, both
// the typed view and the tree, so templates see the effective values.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	deploy, _ := cmd.Flags().GetBool("deploy")
	noDeploy, _ := cmd.Flags().GetBool("no-deploy")
	if deploy && noDeploy {
		return fmt.Errorf("--deploy and --no-deploy are mutually exclusive")
	}
	if deploy {
		cfg.Deploy = true
		cfg.Set("deploy", true)
	}
	if noDeploy {
		cfg.Deploy = false
		cfg.Set("deploy", false)
	}
	if env, _ := cmd.Flags().GetString("env"); env != "" {
		cfg.TestEnv.Use = env
		cfg.Set("testenv.use", env)
	}
	return nil
}

// logLevel maps the verbosity flags to a logger level.
func logLevel(cmd *cobra.Command) string {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return "warn"
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return "debug"
	}
	return "info"
}

// gitQueryer adapts the shell package to the git query interface used by
// configuration finalization.
func gitQueryer(ctx context.Context, dir string) gitversion.Queryer {
	return func(args ...string) (string, error) {
		return shell.Output(ctx, dir, "git", args...)
	}
}

// historyPath resolves the configured history database path against the
// project root.
func historyPath(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// recordingLogger forwards scheduler events and records completed tasks in
// the history store.
type recordingLogger struct {
	next  scheduler.Logger
	store *history.Store
	ctx   context.Context
	log   *logger.ConsoleLogger
}

// TaskStart implements scheduler.Logger.
func (r *recordingLogger) TaskStart(run *scheduler.Run, task string) {
	r.next.TaskStart(run, task)
}

// TaskDone implements scheduler.Logger.
func (r *recordingLogger) TaskDone(run *scheduler.Run, task string, d time.Duration) {
	r.next.TaskDone(run, task, d)
	err := r.store.RecordTask(r.ctx, history.Record{
		RunID:    run.ID,
		Task:     task,
		Success:  true,
		Duration: d,
		Started:  time.Now().Add(-d),
	})
	if err != nil {
		r.log.Warnf("record task %s: %v", task, err)
	}
}

// recordFailure stores the failing task of an aborted run.
func recordFailure(ctx context.Context, store *history.Store, run *scheduler.Run, execErr error, log *logger.ConsoleLogger) {
	if store == nil {
		return
	}
	var taskErr *scheduler.TaskError
	if !errors.As(execErr, &taskErr) {
		return
	}
	err := store.RecordTask(ctx, history.Record{
		RunID:   run.ID,
		Task:    taskErr.Task,
		Success: false,
		Error:   taskErr.Err.Error(),
		Started: time.Now(),
	})
	if err != nil {
		log.Warnf("record failed task %s: %v", taskErr.Task, err)
	}
}
