package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/callum/drover/internal/filelock"
	"github.com/callum/drover/internal/gitversion"
	"github.com/callum/drover/internal/shell"
	"github.com/callum/drover/internal/tool"
)

// writeVersion renders version files from the parsed git tag. Tools declare
// a template and a destination relative to the package directory.
func (wf *Context) writeVersion(ctx context.Context) error {
	cfg := wf.Cfg
	for i := range cfg.Project.Packages {
		pkg := &cfg.Project.Packages[i]
		for _, name := range pkg.Tools {
			t, err := wf.Tools.Lookup(name)
			if err != nil {
				return err
			}
			if t.VersionTemplate == "" {
				continue
			}
			fmtCtx := tool.Context{Config: cfg, Package: pkg}
			content, err := tool.Format(t.VersionTemplate, fmtCtx)
			if err != nil {
				return err
			}
			dest, err := tool.Format(t.VersionDestination, fmtCtx)
			if err != nil {
				return err
			}
			path := filepath.Join(pkg.AbsPath, dest)
			wf.Log.Infof("writing version %s to %s", cfg.Git.TagVersion, path)
			if err := filelock.AtomicWrite(path, []byte(content)); err != nil {
				return err
			}
		}
	}
	return nil
}

// onMergeBranch reports whether the run happens on the merge branch. An
// unknown branch (detached head without a tag) gets the stricter merge
// treatment rather than the diff-based feature treatment.
func (wf *Context) onMergeBranch() bool {
	branch := wf.Cfg.Git.Branch
	return branch == "" || branch == wf.Cfg.Git.MergeBranch || branch == gitversion.NoBranch
}

// lintStatic runs the static linters. Merge-branch runs lint the whole tree;
// feature-branch runs lint the diff against the merge branch.
func (wf *Context) lintStatic(ctx context.Context) error {
	phase := "lint-static-feature"
	if wf.onMergeBranch() {
		phase = "lint-static-merge"
	}
	return wf.runPhase(ctx, phase, phaseOptions{})
}

// lintDynamic runs the linters that need the in-place build.
func (wf *Context) lintDynamic(ctx context.Context) error {
	phase := "lint-dynamic-feature"
	if wf.onMergeBranch() {
		phase = "lint-dynamic-merge"
	}
	return wf.runPhase(ctx, phase, phaseOptions{})
}

// buildInplace builds every package in place, accumulating exported paths
// and flags into the run environment, then writes the activate script that
// reproduces that environment in an interactive shell.
func (wf *Context) buildInplace(ctx context.Context) error {
	if err := wf.runPhase(ctx, "build-inplace", phaseOptions{collectExports: true}); err != nil {
		return err
	}
	return wf.writeActivateFile()
}

// writeActivateFile renders the shell script that activates the test
// environment with the same exports the run accumulated. The none backend
// has no activate file.
func (wf *Context) writeActivateFile() error {
	cfg := wf.Cfg
	if cfg.TestEnv.ActivateFile == "" {
		return nil
	}

	var script strings.Builder
	script.WriteString("#!/usr/bin/env bash\n")
	switch cfg.TestEnv.Use {
	case "conda":
		fmt.Fprintf(&script, "source %s\n", filepath.Join(cfg.Conda.BasePath, "bin", "activate"))
		fmt.Fprintf(&script, "conda activate %s\n", cfg.TestEnv.Path)
		fmt.Fprintf(&script, "export CONDA_BLD_PATH=%q\n", cfg.Conda.BuildPath)
	case "venv":
		fmt.Fprintf(&script, "source %s\n", filepath.Join(cfg.TestEnv.Path, "bin", "activate"))
	}
	for _, name := range wf.Env.Names() {
		fmt.Fprintf(&script, "export %s=%q\n", name, wf.Env[name])
	}

	path := filepath.Join(wf.Dir, cfg.TestEnv.ActivateFile)
	wf.Log.Infof("writing activate script %s", path)
	return filelock.AtomicWrite(path, []byte(script.String()))
}

// testInplace runs the test suites against the in-place build and uploads
// coverage when configured.
func (wf *Context) testInplace(ctx context.Context) error {
	if err := wf.runPhase(ctx, "test-inplace", phaseOptions{}); err != nil {
		return err
	}
	if !wf.Cfg.UploadCoverage {
		return nil
	}
	wf.Log.Infof("uploading coverage reports")
	// Piped rather than process-substituted: the runner uses sh -c, and
	// /bin/sh is not bash everywhere.
	_, err := wf.Runner.Run(ctx, shell.Command{
		Line: "curl -s https://codecov.io/bash | bash",
		Dir:  wf.Dir,
		Env:  wf.Env,
	})
	return err
}

// buildPackages builds the distributable artifacts.
func (wf *Context) buildPackages(ctx context.Context) error {
	return wf.runPhase(ctx, "build-packages", phaseOptions{})
}
