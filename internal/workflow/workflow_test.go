package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/logger"
	"github.com/callum/drover/internal/shell"
)

// fakeRunner records every command and fails those whose line contains a
// registered substring.
type fakeRunner struct {
	commands []shell.Command
	failOn   []string
}

func (r *fakeRunner) Run(ctx context.Context, cmd shell.Command) (shell.Result, error) {
	r.commands = append(r.commands, cmd)
	for _, pat := range r.failOn {
		if strings.Contains(cmd.Line, pat) {
			return shell.Result{Command: cmd.Line, ExitCode: 1},
				&shell.ExitError{Command: cmd.Line, ExitCode: 1}
		}
	}
	return shell.Result{Command: cmd.Line}, nil
}

func (r *fakeRunner) lines() []string {
	lines := make([]string, len(r.commands))
	for i, cmd := range r.commands {
		lines[i] = cmd.Line
	}
	return lines
}

// fakeGit answers the git queries finalization issues.
func fakeGit(describe, branch string) func(args ...string) (string, error) {
	return func(args ...string) (string, error) {
		switch strings.Join(args, " ") {
		case "describe --tags":
			return describe, nil
		case "rev-parse --abbrev-ref HEAD":
			return branch, nil
		}
		return "", os.ErrNotExist
	}
}

// newTestContext loads and finalizes a project configuration in a temp
// directory and wires it to a fake runner.
func newTestContext(t *testing.T, project, describe, branch string) (*Context, *fakeRunner) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectFile), []byte(project), 0644))

	cfg, err := config.Load(dir, func(string) string { return "" })
	require.NoError(t, err)
	require.NoError(t, cfg.Finalize(config.FinalizeOptions{
		Dir:      dir,
		Getenv:   func(string) string { return "" },
		GitQuery: fakeGit(describe, branch),
	}))

	runner := &fakeRunner{}
	wf := NewContext(cfg, runner, logger.NewConsoleLogger(nil, "info"), dir)
	return wf, runner
}

func TestRequirementHash(t *testing.T) {
	h1, err := requirementHash([]string{"cmake", "conda"}, nil, []string{"pytest"})
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	// Order must not matter.
	h2, err := requirementHash([]string{"conda", "cmake"}, nil, []string{"pytest"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Any added element must change the digest.
	h3, err := requirementHash([]string{"cmake", "conda"}, nil, []string{"pytest", "twine"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	// Conda and pip requirements with the same name are distinct inputs.
	h4, err := requirementHash([]string{"pytest"}, nil, nil)
	require.NoError(t, err)
	h5, err := requirementHash(nil, nil, []string{"pytest"})
	require.NoError(t, err)
	assert.NotEqual(t, h4, h5)
}

func TestRequirementHashRecipeContents(t *testing.T) {
	recipe := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(recipe, "meta.yaml"), []byte("package: spam\n"), 0644))

	h1, err := requirementHash(nil, []string{recipe}, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(recipe, "meta.yaml"), []byte("package: eggs\n"), 0644))
	h2, err := requirementHash(nil, []string{recipe}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

const inplaceProject = `
project:
  name: spam
  packages:
    - tools: [build-py-inplace, build-cmake-inplace, pytest]
testenv:
  use: none
`

func TestRunPhaseSkipsUnsupportedBackend(t *testing.T) {
	wf, runner := newTestContext(t, inplaceProject, "1.2.3", "main")

	require.NoError(t, wf.buildInplace(context.Background()))

	lines := runner.lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "python setup.py build_ext -i", lines[0])
	// The conda-only cmake tool was skipped, so only PYTHONPATH is exported.
	assert.Equal(t, filepath.Clean(wf.Dir), wf.Env["PYTHONPATH"])
	assert.NotContains(t, wf.Env, "LD_LIBRARY_PATH")
}

func TestRunPhaseCommandsSeeEnvOverlay(t *testing.T) {
	wf, runner := newTestContext(t, inplaceProject, "1.2.3", "main")

	require.NoError(t, wf.buildInplace(context.Background()))
	require.NoError(t, wf.testInplace(context.Background()))

	last := runner.commands[len(runner.commands)-1]
	assert.Equal(t, "pytest spam -v --cov=spam", last.Line)
	assert.Equal(t, wf.Env["PYTHONPATH"], last.Env["PYTHONPATH"])
	assert.Equal(t, "1.2.3", last.Env["PROJECT_VERSION"])
}

func TestNoExportsWithoutPhaseCommands(t *testing.T) {
	// A tool declaring exports but no commands for the phase must not
	// export anything: exports follow a successful run.
	wf, runner := newTestContext(t, `
project:
  name: spam
  packages:
    - tools: [exporter-only]
testenv:
  use: none
tools:
  exporter-only:
    export_paths:
      EXTRA_PATH: "{package.abs_path}"
`, "1.2.3", "main")

	require.NoError(t, wf.buildInplace(context.Background()))
	assert.Empty(t, runner.commands)
	assert.NotContains(t, wf.Env, "EXTRA_PATH")
}

func TestCoverageUploadCommand(t *testing.T) {
	wf, runner := newTestContext(t, `
project:
  name: spam
  packages:
    - tools: [pytest]
testenv:
  use: none
upload_coverage: true
`, "1.2.3", "main")

	require.NoError(t, wf.testInplace(context.Background()))

	lines := runner.lines()
	require.Len(t, lines, 2)
	// The upload line runs under sh -c, so it must avoid bash-only syntax.
	assert.Equal(t, "curl -s https://codecov.io/bash | bash", lines[1])
}

const lintProject = `
project:
  name: spam
  packages:
    - tools: [cardboardlint-static]
testenv:
  use: none
`

func TestLintPhaseSelection(t *testing.T) {
	t.Run("merge branch", func(t *testing.T) {
		wf, runner := newTestContext(t, lintProject, "1.2.3", "main")
		require.NoError(t, wf.lintStatic(context.Background()))
		require.Len(t, runner.commands, 1)
		assert.Equal(t, "cardboardlinter -f static", runner.commands[0].Line)
	})

	t.Run("feature branch", func(t *testing.T) {
		wf, runner := newTestContext(t, lintProject, "1.2.3", "feature-branch")
		require.NoError(t, wf.lintStatic(context.Background()))
		require.Len(t, runner.commands, 1)
		assert.Equal(t, "cardboardlinter -r main -f static", runner.commands[0].Line)
	})
}

func TestWriteVersion(t *testing.T) {
	wf, _ := newTestContext(t, `
project:
  name: spam
  packages:
    - tools: [write-py-version]
testenv:
  use: none
`, "1.2.3-4-gabcdef", "main")

	require.NoError(t, wf.writeVersion(context.Background()))

	data, err := os.ReadFile(filepath.Join(wf.Dir, "spam", "version.py"))
	require.NoError(t, err)
	assert.Equal(t, "__version__ = '1.2.3.post4'\n", string(data))
}

func TestWriteActivateFileVenv(t *testing.T) {
	wf, _ := newTestContext(t, `
project:
  name: spam
  packages:
    - tools: [build-py-inplace]
testenv:
  use: venv
venv:
  base_path: /opt/venvs
`, "1.2.3", "main")

	require.NoError(t, wf.buildInplace(context.Background()))

	data, err := os.ReadFile(filepath.Join(wf.Dir, "activate-venv-spam-dev.sh"))
	require.NoError(t, err)
	script := string(data)
	assert.Contains(t, script, "source /opt/venvs/spam-dev/bin/activate")
	assert.Contains(t, script, "export PROJECT_VERSION=\"1.2.3\"")
	assert.Contains(t, script, "export PYTHONPATH=")
}

func TestInstallRequirementsSkipMarker(t *testing.T) {
	dir := t.TempDir()
	project := `
project:
  name: spam
  packages:
    - tools: [pytest]
testenv:
  use: venv
venv:
  base_path: ` + filepath.Join(dir, "venvs") + `
`
	wf, runner := newTestContext(t, project, "1.2.3", "main")

	require.NoError(t, wf.installRequirements(context.Background()))
	require.Len(t, runner.commands, 1)
	assert.Contains(t, runner.commands[0].Line, "pip install --upgrade pytest pytest-cov")

	marker := filepath.Join(wf.Cfg.TestEnv.Path, skipInstallMarker)
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(string(data)), 64)

	// A fresh marker with the same hash suppresses reinstallation.
	require.NoError(t, wf.installRequirements(context.Background()))
	assert.Len(t, runner.commands, 1)

	// A stale hash does not.
	require.NoError(t, os.WriteFile(marker, []byte("0000\n"), 0644))
	require.NoError(t, wf.installRequirements(context.Background()))
	assert.Len(t, runner.commands, 2)
}

const deployProject = `
project:
  name: spam
  packages:
    - tools: [build-sdist, deploy-pypi, deploy-github]
testenv:
  use: none
deploy: true
`

func TestDeployRunsEligibleTools(t *testing.T) {
	wf, runner := newTestContext(t, deployProject, "1.2.3", "main")

	distDir := filepath.Join(wf.Dir, "dist")
	require.NoError(t, os.MkdirAll(distDir, 0755))
	asset := filepath.Join(distDir, "spam-1.2.3.tar.gz")
	require.NoError(t, os.WriteFile(asset, []byte("sdist"), 0644))

	require.NoError(t, wf.deploy(context.Background()))

	lines := runner.lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "twine upload "+asset, lines[0])
	assert.Contains(t, lines[1], "gh release create 1.2.3 "+asset)
	assert.Contains(t, lines[1], "--notes-file "+filepath.Join(wf.Dir, ".drover", "relnotes-1.2.3.md"))
}

func TestDeployToleratesToolFailure(t *testing.T) {
	wf, runner := newTestContext(t, deployProject, "1.2.3", "main")
	runner.failOn = []string{"twine"}

	distDir := filepath.Join(wf.Dir, "dist")
	require.NoError(t, os.MkdirAll(distDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(distDir, "spam-1.2.3.tar.gz"), []byte("sdist"), 0644))

	// The failing pypi upload must not stop the github release.
	require.NoError(t, wf.deploy(context.Background()))
	lines := runner.lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "gh release create")
}

func TestDeployLabelGating(t *testing.T) {
	// A test prerelease deploys to github (labels main,test) but not to
	// pypi (label main only).
	wf, runner := newTestContext(t, deployProject, "1.2.3b1", "main")

	distDir := filepath.Join(wf.Dir, "dist")
	require.NoError(t, os.MkdirAll(distDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(distDir, "spam-1.2.3b1.tar.gz"), []byte("sdist"), 0644))

	require.NoError(t, wf.deploy(context.Background()))
	lines := runner.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "gh release create")
}

func TestDeployDocsWithoutAssetPattern(t *testing.T) {
	wf, runner := newTestContext(t, `
project:
  name: spam
  packages:
    - tools: [deploy-docs]
testenv:
  use: none
deploy: true
`, "1.2.3", "main")

	require.NoError(t, wf.deploy(context.Background()))
	lines := runner.lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "ghp-import -n -p -r origin -b gh-pages doc/build/html", lines[0])
}

func TestDeployMissingAssetsFails(t *testing.T) {
	wf, _ := newTestContext(t, deployProject, "1.2.3", "main")

	err := wf.deploy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no assets match")
}

func TestDeployNotRequested(t *testing.T) {
	wf, runner := newTestContext(t, strings.Replace(deployProject, "deploy: true", "deploy: false", 1), "1.2.3", "main")
	require.NoError(t, wf.deploy(context.Background()))
	assert.Empty(t, runner.commands)
}

func TestDeploySkipsNonRelease(t *testing.T) {
	wf, runner := newTestContext(t, deployProject, "", "main")
	require.NoError(t, wf.deploy(context.Background()))
	assert.Empty(t, runner.commands)
}

func TestDeployUsesChangelogSection(t *testing.T) {
	wf, _ := newTestContext(t, deployProject, "1.2.3", "main")

	changelog := "# Changelog\n\n## 1.2.3\n\n- Fixed the flux capacitor.\n\n## 1.2.2\n\n- Older.\n"
	require.NoError(t, os.WriteFile(filepath.Join(wf.Dir, changelogFile), []byte(changelog), 0644))

	notes, err := wf.releaseNotesFile()
	require.NoError(t, err)
	data, err := os.ReadFile(notes)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Fixed the flux capacitor.")
	assert.NotContains(t, string(data), "Older.")
}

func TestSanitizeGitRecoversMergeBranch(t *testing.T) {
	wf, runner := newTestContext(t, lintProject, "1.2.3", "feature-branch")
	runner.failOn = []string{"rev-parse --verify"}

	require.NoError(t, wf.sanitizeGit(context.Background()))
	lines := runner.lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "git rev-parse --verify -q main", lines[0])
	assert.Equal(t, "git branch --track main origin/main", lines[1])
}

func TestSanitizeGitOnMergeBranchIsNoop(t *testing.T) {
	wf, runner := newTestContext(t, lintProject, "1.2.3", "main")
	require.NoError(t, wf.sanitizeGit(context.Background()))
	assert.Empty(t, runner.commands)
}

func TestTasksGraph(t *testing.T) {
	wf, _ := newTestContext(t, deployProject, "1.2.3", "main")

	reg := wf.Tasks()
	require.NoError(t, reg.Validate())

	task, err := reg.Default()
	require.NoError(t, err)
	assert.Equal(t, "robot", task.Name)
	assert.Contains(t, task.Deps, "deploy")
}

func TestTasksGraphWithoutDeploy(t *testing.T) {
	wf, _ := newTestContext(t, lintProject, "1.2.3", "main")

	reg := wf.Tasks()
	require.NoError(t, reg.Validate())

	task, err := reg.Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"quality"}, task.Deps)
}
