package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/callum/drover/internal/filelock"
	"github.com/callum/drover/internal/shell"
)

// skipInstallMarker is dropped in the environment directory after a
// successful requirement installation. Its content is the requirement hash.
const skipInstallMarker = ".skip_install"

// skipInstallMaxAge bounds how long a marker suppresses reinstallation, so
// upstream requirement updates are picked up at least daily.
const skipInstallMaxAge = 24 * time.Hour

// sanitizeGit makes sure the merge branch exists locally. Feature-branch
// linting diffs against it, and a fresh shallow clone may not carry it.
func (wf *Context) sanitizeGit(ctx context.Context) error {
	branch := wf.Cfg.Git.MergeBranch
	if branch == "" || branch == wf.Cfg.Git.Branch {
		return nil
	}

	verify := fmt.Sprintf("git rev-parse --verify -q %s", branch)
	if _, err := wf.Runner.Run(ctx, shell.Command{Line: verify, Dir: wf.Dir}); err == nil {
		return nil
	}

	wf.Log.Infof("merge branch %s missing locally, recovering it", branch)
	track := fmt.Sprintf("git branch --track %s origin/%s", branch, branch)
	if _, err := wf.Runner.Run(ctx, shell.Command{Line: track, Dir: wf.Dir}); err == nil {
		return nil
	}

	fetch := fmt.Sprintf("git fetch origin %s:%s", branch, branch)
	if _, err := wf.Runner.Run(ctx, shell.Command{Line: fetch, Dir: wf.Dir}); err != nil {
		return fmt.Errorf("merge branch %s is not available: %w", branch, err)
	}
	return nil
}

// setupEnv creates the test environment when it does not exist yet. The
// environment name encodes the pinning, so changed pins land in a fresh
// environment instead of mutating an old one.
func (wf *Context) setupEnv(ctx context.Context) error {
	cfg := wf.Cfg
	switch cfg.TestEnv.Use {
	case "none":
		wf.Log.Infof("testenv.use is none, running in the ambient environment")
		return nil
	case "conda":
		return wf.setupCondaEnv(ctx)
	case "venv":
		return wf.setupVenvEnv(ctx)
	}
	return fmt.Errorf("unknown testenv backend %q", cfg.TestEnv.Use)
}

func (wf *Context) setupCondaEnv(ctx context.Context) error {
	cfg := wf.Cfg
	if _, err := os.Stat(cfg.TestEnv.Path); err == nil {
		wf.Log.Infof("conda environment %s already exists", cfg.TestEnv.Name)
	} else {
		create := fmt.Sprintf("conda create -y -p %s", cfg.TestEnv.Path)
		if pins := cfg.PinnedVersions(); len(pins) > 0 {
			create += " " + strings.Join(pins, " ")
		}
		if _, err := wf.Runner.Run(ctx, shell.Command{Line: create, Dir: wf.Dir}); err != nil {
			return err
		}
	}

	// Channels are configured per environment. The remove is allowed to
	// fail when no channel key exists yet.
	remove := "conda config --env --remove-key channels"
	if _, err := wf.Runner.Run(ctx, shell.Command{Line: remove, Dir: wf.Dir, Env: wf.condaEnv()}); err != nil {
		var exit *shell.ExitError
		if !errors.As(err, &exit) {
			return err
		}
	}
	for _, channel := range cfg.Conda.Channels {
		add := fmt.Sprintf("conda config --env --append channels %s", channel)
		if _, err := wf.Runner.Run(ctx, shell.Command{Line: add, Dir: wf.Dir, Env: wf.condaEnv()}); err != nil {
			return err
		}
	}
	return nil
}

func (wf *Context) setupVenvEnv(ctx context.Context) error {
	cfg := wf.Cfg
	if _, err := os.Stat(cfg.TestEnv.Path); err == nil {
		wf.Log.Infof("virtualenv %s already exists", cfg.TestEnv.Name)
		return nil
	}
	create := fmt.Sprintf("python3 -m venv %s", cfg.TestEnv.Path)
	if _, err := wf.Runner.Run(ctx, shell.Command{Line: create, Dir: wf.Dir}); err != nil {
		return err
	}
	for _, pin := range cfg.PinnedVersions() {
		name, version, _ := strings.Cut(pin, "=")
		if name == "python" {
			// The interpreter version is fixed by the venv itself.
			continue
		}
		install := fmt.Sprintf("%s/bin/pip install %s==%s", cfg.TestEnv.Path, name, version)
		if _, err := wf.Runner.Run(ctx, shell.Command{Line: install, Dir: wf.Dir}); err != nil {
			return err
		}
	}
	return nil
}

// installRequirements aggregates the requirements of every tool in use and
// installs them into the test environment. A marker file skips the work when
// the same requirement set was installed recently; the marker is guarded by
// a file lock so concurrent runs against one environment do not interleave.
func (wf *Context) installRequirements(ctx context.Context) error {
	cfg := wf.Cfg
	if cfg.TestEnv.Use == "none" {
		wf.Log.Infof("testenv.use is none, skipping requirement installation")
		return nil
	}

	condaReqs, recipeDirs, pipReqs, err := wf.gatherRequirements()
	if err != nil {
		return err
	}
	hash, err := requirementHash(condaReqs, recipeDirs, pipReqs)
	if err != nil {
		return err
	}
	wf.Log.Debugf("requirement hash %s", hash)

	if err := os.MkdirAll(cfg.TestEnv.Path, 0755); err != nil {
		return fmt.Errorf("create environment directory: %w", err)
	}
	marker := filepath.Join(cfg.TestEnv.Path, skipInstallMarker)
	return filelock.WithLock(marker, func() error {
		if wf.installSatisfied(marker, hash) {
			wf.Log.Infof("requirements unchanged, skipping installation")
			return nil
		}
		if err := wf.install(ctx, condaReqs, pipReqs); err != nil {
			return err
		}
		return filelock.AtomicWrite(marker, []byte(hash+"\n"))
	})
}

// installSatisfied reports whether the marker is fresh and records the same
// requirement hash.
func (wf *Context) installSatisfied(marker, hash string) bool {
	info, err := os.Stat(marker)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > skipInstallMaxAge {
		return false
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == hash
}

// install runs the backend-appropriate installers.
func (wf *Context) install(ctx context.Context, condaReqs, pipReqs []string) error {
	cfg := wf.Cfg
	if cfg.TestEnv.Use == "conda" && len(condaReqs) > 0 {
		line := "conda install --update-deps -y " + strings.Join(sorted(condaReqs), " ")
		if _, err := wf.Runner.Run(ctx, shell.Command{Line: line, Dir: wf.Dir, Env: wf.condaEnv()}); err != nil {
			return err
		}
	}
	if len(pipReqs) > 0 {
		pip := "pip"
		if cfg.TestEnv.Use == "venv" {
			pip = filepath.Join(cfg.TestEnv.Path, "bin", "pip")
		}
		line := pip + " install --upgrade " + strings.Join(sorted(pipReqs), " ")
		if _, err := wf.Runner.Run(ctx, shell.Command{Line: line, Dir: wf.Dir, Env: wf.condaEnv()}); err != nil {
			return err
		}
	}
	return nil
}

// gatherRequirements walks every package's tools and collects the conda and
// pip requirements plus the conda recipe directories that feed the
// requirement hash.
func (wf *Context) gatherRequirements() (condaReqs, recipeDirs, pipReqs []string, err error) {
	cfg := wf.Cfg
	conda := map[string]bool{}
	pip := map[string]bool{}
	if cfg.TestEnv.Use == "conda" {
		conda["conda"] = true
		conda["conda-build"] = true
	}
	for i := range cfg.Project.Packages {
		pkg := &cfg.Project.Packages[i]
		if cfg.TestEnv.Use == "conda" {
			recipe := filepath.Join(pkg.AbsPath, "tools", "conda.recipe")
			if info, statErr := os.Stat(recipe); statErr == nil && info.IsDir() {
				recipeDirs = append(recipeDirs, recipe)
			}
		}
		for _, name := range pkg.Tools {
			t, lookupErr := wf.Tools.Lookup(name)
			if lookupErr != nil {
				return nil, nil, nil, lookupErr
			}
			if !t.SupportsEnv(cfg.TestEnv.Use) {
				continue
			}
			for _, req := range t.CondaRequirements {
				conda[req] = true
			}
			for _, req := range t.PipRequirements {
				pip[req] = true
			}
		}
	}
	for req := range conda {
		condaReqs = append(condaReqs, req)
	}
	for req := range pip {
		pipReqs = append(pipReqs, req)
	}
	return condaReqs, recipeDirs, pipReqs, nil
}

// condaEnv is the overlay that points conda tooling at the test environment.
func (wf *Context) condaEnv() shell.Env {
	if wf.Cfg.TestEnv.Use != "conda" {
		return wf.Env
	}
	env := wf.Env.Clone()
	env["CONDA_PREFIX"] = wf.Cfg.TestEnv.Path
	env["CONDA_BLD_PATH"] = wf.Cfg.Conda.BuildPath
	return env
}

// nuclear removes the test environment and every untracked file. There is no
// undo; the command exists for corrupted environments.
func (wf *Context) nuclear(ctx context.Context) error {
	cfg := wf.Cfg
	switch cfg.TestEnv.Use {
	case "conda":
		remove := fmt.Sprintf("conda env remove -y -p %s", cfg.TestEnv.Path)
		if _, err := wf.Runner.Run(ctx, shell.Command{Line: remove, Dir: wf.Dir}); err != nil {
			var exit *shell.ExitError
			if !errors.As(err, &exit) {
				return err
			}
			wf.Log.Warnf("conda env remove failed: %v", err)
		}
	case "venv":
		if cfg.TestEnv.Path != "" {
			if err := os.RemoveAll(cfg.TestEnv.Path); err != nil {
				return fmt.Errorf("remove virtualenv: %w", err)
			}
		}
	}
	_, err := wf.Runner.Run(ctx, shell.Command{Line: "git clean -fdx", Dir: wf.Dir})
	return err
}
