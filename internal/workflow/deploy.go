package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/filelock"
	"github.com/callum/drover/internal/gitversion"
	"github.com/callum/drover/internal/relnotes"
	"github.com/callum/drover/internal/tool"
)

// changelogFile is the changelog searched for release notes.
const changelogFile = "CHANGELOG.md"

// deploy uploads the built packages to their distribution channels. Each
// deploy tool is gated twice: by the artifact-kind flag and by the version's
// deploy label. A failing upload is logged and tolerated so the remaining
// channels still get their artifacts.
func (wf *Context) deploy(ctx context.Context) error {
	cfg := wf.Cfg
	if !cfg.Deploy {
		wf.Log.Infof("deployment not requested")
		return nil
	}
	label := gitversion.DeployLabel(cfg.Git.DeployLabel)
	if label == gitversion.LabelNone {
		wf.Log.Infof("version %s is not a release, nothing to deploy", cfg.Git.TagVersion)
		return nil
	}

	notesFile, err := wf.releaseNotesFile()
	if err != nil {
		return err
	}
	wf.checkDeployVars()

	return wf.runPhase(ctx, "deploy", phaseOptions{
		tolerate: true,
		extra: func(pkg *config.Package, t *tool.Tool) (map[string]string, bool, error) {
			assets, err := wf.deployAssets(pkg, t)
			if err != nil {
				return nil, false, err
			}
			if !tool.NeedDeployment(cfg, t, label) {
				wf.Log.Infof("  SKIP %s (%s): not deploying label %q", t.Name, pkg.Name, cfg.Git.DeployLabel)
				return nil, false, nil
			}
			return map[string]string{
				"assets":       strings.Join(assets, " "),
				"deploy_label": string(label),
				"doc_branch":   t.DocBranch,
				"notes_file":   notesFile,
			}, true, nil
		},
	})
}

// deployAssets expands a tool's asset pattern. A pattern matching nothing is
// an error even when the tool would be skipped afterwards: missing artifacts
// point at a broken build, not at gating. Tools without an asset pattern
// (documentation deploys) have no assets.
func (wf *Context) deployAssets(pkg *config.Package, t *tool.Tool) ([]string, error) {
	if t.AssetPattern == "" {
		return nil, nil
	}
	pattern, err := tool.Format(t.AssetPattern, tool.Context{Config: wf.Cfg, Package: pkg})
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(pkg.AbsPath, pattern)
	}
	assets, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expand asset pattern %q: %w", pattern, err)
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("tool %s: no assets match %q", t.Name, pattern)
	}
	return assets, nil
}

// checkDeployVars reports deploy credentials that are missing from the
// environment. Uploads will fail loudly on their own; the warning turns an
// opaque tool error into an actionable one.
func (wf *Context) checkDeployVars() {
	seen := map[string]bool{}
	for i := range wf.Cfg.Project.Packages {
		pkg := &wf.Cfg.Project.Packages[i]
		for _, name := range pkg.Tools {
			t, err := wf.Tools.Lookup(name)
			if err != nil || len(t.Phases["deploy"]) == 0 {
				continue
			}
			for _, v := range t.DeployVars {
				if seen[v] {
					continue
				}
				seen[v] = true
				if os.Getenv(v) == "" {
					wf.Log.Warnf("deploy variable %s is not set", v)
				} else {
					wf.Log.Debugf("deploy variable %s is set", v)
				}
			}
		}
	}
}

// releaseNotesFile writes the notes file handed to release-upload tools. The
// changelog section for the current version is used when present; projects
// without a changelog get a one-line fallback.
func (wf *Context) releaseNotesFile() (string, error) {
	cfg := wf.Cfg
	dest := filepath.Join(wf.Dir, ".drover", fmt.Sprintf("relnotes-%s.md", cfg.Git.TagVersion))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create notes directory: %w", err)
	}

	changelog := filepath.Join(wf.Dir, changelogFile)
	if _, err := os.Stat(changelog); err == nil {
		err := relnotes.ExtractFile(changelog, cfg.Git.TagVersion, dest)
		if err == nil {
			wf.Log.Infof("release notes extracted from %s", changelogFile)
			return dest, nil
		}
		var notFound *relnotes.NotFoundError
		if !errors.As(err, &notFound) {
			return "", err
		}
		wf.Log.Warnf("%s has no section for %s, using fallback notes", changelogFile, cfg.Git.TagVersion)
	}

	fallback := fmt.Sprintf("%s %s\n", cfg.Project.Name, cfg.Git.TagVersion)
	if err := filelock.AtomicWrite(dest, []byte(fallback)); err != nil {
		return "", err
	}
	return dest, nil
}
