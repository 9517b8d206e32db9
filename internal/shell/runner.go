// Package shell runs external commands on behalf of workflow tasks.
//
// Commands are executed through the Runner interface so task bodies can be
// tested against a fake runner. The real implementation shells out via
// `sh -c`, since tool command templates are plain shell command lines.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external command invocation.
type Command struct {
	// Line is the shell command line to run.
	Line string
	// Dir is the working directory, the process inherits the current
	// directory when empty.
	Dir string
	// Env is an overlay applied on top of the parent process environment.
	Env Env
}

// Result holds the outcome of a completed command.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExitError reports a command that exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Runner executes external commands. Implementations must return an
// *ExitError (wrapped or not) when the command runs but exits non-zero.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands through the system shell.
type ExecRunner struct {
	// Echo receives each command line before it runs, for progress
	// reporting. May be nil.
	Echo func(line string)
}

// Run executes the command with `sh -c`, applying the working directory and
// environment overlay. Stdout and stderr are captured and streamed through to
// the parent process so tool output stays visible.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if r.Echo != nil {
		r.Echo(cmd.Line)
	}

	proc := exec.CommandContext(ctx, "sh", "-c", cmd.Line)
	proc.Dir = cmd.Dir
	proc.Env = cmd.Env.Overlay(os.Environ())

	var stdout, stderr bytes.Buffer
	proc.Stdout = io.MultiWriter(&stdout, os.Stdout)
	proc.Stderr = io.MultiWriter(&stderr, os.Stderr)

	err := proc.Run()
	result := Result{
		Command:  cmd.Line,
		ExitCode: proc.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return result, &ExitError{
				Command:  cmd.Line,
				ExitCode: result.ExitCode,
				Stderr:   result.Stderr,
			}
		}
		return result, fmt.Errorf("run %q: %w", cmd.Line, err)
	}
	return result, nil
}

// Output runs a program directly (no shell) in dir and returns its stdout.
// Used for git plumbing queries where shell interpretation is unnecessary.
func Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	proc := exec.CommandContext(ctx, name, args...)
	proc.Dir = dir
	out, err := proc.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}
