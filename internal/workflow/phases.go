package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sort"

	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/shell"
	"github.com/callum/drover/internal/tool"
)

// phaseOptions tune how one phase is executed across packages and tools.
type phaseOptions struct {
	// extra supplies run-scoped placeholder values per tool invocation. A
	// false second return skips the tool without error.
	extra func(pkg *config.Package, t *tool.Tool) (map[string]string, bool, error)

	// tolerate keeps executing remaining tools after a command exits
	// non-zero. Template errors are always fatal.
	tolerate bool

	// collectExports merges the tool's exported paths and flags into the
	// run environment after its commands succeed. Tools without commands
	// for the phase export nothing.
	collectExports bool
}

// runPhase executes one phase over every package and every tool attached to
// it. Tools that do not support the active environment backend are skipped
// with a diagnostic; tools without commands for the phase contribute
// nothing.
func (wf *Context) runPhase(ctx context.Context, phase string, opts phaseOptions) error {
	var failures int
	for i := range wf.Cfg.Project.Packages {
		pkg := &wf.Cfg.Project.Packages[i]
		for _, name := range pkg.Tools {
			t, err := wf.Tools.Lookup(name)
			if err != nil {
				return err
			}
			if !t.SupportsEnv(wf.Cfg.TestEnv.Use) {
				wf.Log.Infof("  SKIP %s (%s): no support for testenv %q", t.Name, pkg.Name, wf.Cfg.TestEnv.Use)
				continue
			}
			// A tool with no commands for this phase contributes nothing,
			// including exports: those merge only after a successful run.
			commands := t.Phases[phase]
			if len(commands) == 0 {
				continue
			}

			fmtCtx := tool.Context{Config: wf.Cfg, Package: pkg}
			if opts.extra != nil {
				extra, run, err := opts.extra(pkg, t)
				if err != nil {
					return err
				}
				if !run {
					continue
				}
				fmtCtx.Extra = extra
			}

			wf.Log.Toolf(t.Name, pkg.Name)
			if err := wf.runCommands(ctx, pkg, commands, fmtCtx); err != nil {
				var exit *shell.ExitError
				if opts.tolerate && errors.As(err, &exit) {
					wf.Log.Errorf("tool %s failed for %s: %v", t.Name, pkg.Name, err)
					failures++
					continue
				}
				return err
			}
			if opts.collectExports {
				if err := wf.collectExports(pkg, t, fmtCtx); err != nil {
					return err
				}
			}
		}
	}
	if failures > 0 {
		wf.Log.Warnf("phase %s: %d tool(s) failed", phase, failures)
	}
	return nil
}

// runCommands formats and runs a tool's command templates in the package
// directory with the accumulated environment overlay.
func (wf *Context) runCommands(ctx context.Context, pkg *config.Package, commands []string, fmtCtx tool.Context) error {
	for _, template := range commands {
		line, err := tool.Format(template, fmtCtx)
		if err != nil {
			return err
		}
		wf.Log.Commandf(line)
		if _, err := wf.Runner.Run(ctx, shell.Command{
			Line: line,
			Dir:  pkg.AbsPath,
			Env:  wf.Env,
		}); err != nil {
			return err
		}
	}
	return nil
}

// collectExports folds a tool's exported variables into the run environment.
// Path values resolve relative to the package directory and accumulate
// colon-joined; flag values accumulate space-joined.
func (wf *Context) collectExports(pkg *config.Package, t *tool.Tool, fmtCtx tool.Context) error {
	for _, name := range sortedKeys(t.ExportPaths) {
		value, err := tool.Format(t.ExportPaths[name], fmtCtx)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(value) {
			value = filepath.Join(pkg.AbsPath, value)
		}
		wf.Env.AppendPath(name, value)
		wf.Log.Debugf("export %s=%s", name, wf.Env[name])
	}
	for _, name := range sortedKeys(t.ExportFlags) {
		value, err := tool.Format(t.ExportFlags[name], fmtCtx)
		if err != nil {
			return err
		}
		wf.Env.AppendFlags(name, value)
		wf.Log.Debugf("export %s=%s", name, wf.Env[name])
	}
	return nil
}

// sortedKeys returns map keys in sorted order so exports accumulate
// deterministically.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
