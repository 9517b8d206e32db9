package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/callum/drover/internal/gitversion"
)

// pinningForbidden lists characters that must not appear in the pinning
// configuration; version constraints are expressed as plain name/version
// pairs, never as comparison expressions or wildcards.
const pinningForbidden = "=<>!*"

// FinalizeOptions carries the collaborators Finalize needs: the project
// root, an environment lookup and a git query function.
type FinalizeOptions struct {
	Dir      string
	Getenv   func(string) string
	GitQuery gitversion.Queryer
}

// Finalize validates the merged configuration and computes the derived
// fields: expanded paths, the environment name and paths, package defaults
// and the git version information. It runs exactly once, after all layers
// merged and before any task body, so a doomed run fails before causing
// side effects.
func (c *Config) Finalize(opts FinalizeOptions) error {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if c.Project.Name == "" {
		return &ValidationError{Field: "project.name", Reason: "must be set"}
	}

	c.Conda.BasePath = expandPath(c.Conda.BasePath, getenv)
	c.Venv.BasePath = expandPath(c.Venv.BasePath, getenv)

	pins, err := pinnedVersions(c.Conda.Pinning)
	if err != nil {
		return err
	}

	// The environment name is a deterministic function of the project name
	// and the pinning, so re-runs reuse environments and changed pins get a
	// fresh one.
	envName := c.Project.Name + "-dev"
	if len(pins) > 0 {
		envName += "-" + strings.Join(strings.Fields(c.Conda.Pinning), "-")
	}
	c.TestEnv.Name = envName

	switch c.TestEnv.Use {
	case "conda":
		c.TestEnv.Path = filepath.Join(c.Conda.BasePath, "envs", envName)
		c.TestEnv.ActivateFile = fmt.Sprintf("activate-conda-%s.sh", envName)
	case "venv":
		c.TestEnv.Path = filepath.Join(c.Venv.BasePath, envName)
		c.TestEnv.ActivateFile = fmt.Sprintf("activate-venv-%s.sh", envName)
	case "none":
		c.TestEnv.Path = ""
		c.TestEnv.ActivateFile = ""
	default:
		return &ValidationError{
			Field:  "testenv.use",
			Reason: fmt.Sprintf("unknown backend %q, expected conda, venv or none", c.TestEnv.Use),
		}
	}

	// CONDA_BLD_PATH is honored when set, so users can redirect conda build
	// output without touching the configuration.
	if bld := getenv("CONDA_BLD_PATH"); bld != "" {
		c.Conda.BuildPath = bld
	} else if c.TestEnv.Use == "conda" {
		c.Conda.BuildPath = filepath.Join(c.TestEnv.Path, "conda-bld")
	}

	absDir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	for i := range c.Project.Packages {
		pkg := &c.Project.Packages[i]
		if pkg.Path == "" {
			pkg.Path = "."
		}
		if pkg.Name == "" {
			pkg.Name = c.Project.Name
		}
		if pkg.CondaName == "" {
			pkg.CondaName = pkg.Name
		}
		pkg.AbsPath = filepath.Clean(filepath.Join(absDir, pkg.Path))
		for _, name := range pkg.Tools {
			if _, found := c.Tools[name]; !found {
				return &ValidationError{
					Field:  fmt.Sprintf("project.packages[%d].tools", i),
					Reason: fmt.Sprintf("unknown tool %q", name),
				}
			}
		}
	}

	if err := c.finalizeGit(opts.GitQuery); err != nil {
		return err
	}

	c.writeBack()
	return nil
}

// finalizeGit merges the derived version and branch information into the git
// section. Absence of tags is a normal state handled by the describe
// sentinel; a genuinely malformed tag is fatal.
func (c *Config) finalizeGit(query gitversion.Queryer) error {
	if query == nil {
		return fmt.Errorf("finalize: no git query configured")
	}

	describe := gitversion.DescribeString(query)
	info, err := gitversion.Parse(describe)
	if err != nil {
		return err
	}

	c.Git.Describe = info.Describe
	c.Git.Tag = info.Tag
	c.Git.TagMajor = info.Major
	c.Git.TagMinor = info.Minor
	c.Git.TagPatch = info.Patch
	c.Git.TagSuffix = info.Suffix
	c.Git.TagVersion = info.Version
	c.Git.TagSoVersion = info.SoVersion
	c.Git.TagStable = info.Stable
	c.Git.TagTest = info.Test
	c.Git.TagDev = info.Dev
	c.Git.TagRelease = info.Release
	c.Git.DeployLabel = string(info.DeployLabel)
	c.Git.Branch = gitversion.BranchName(query)
	return nil
}

// PinnedVersions returns the pinning configuration as name=version pairs.
// It is valid to call only after Finalize succeeded.
func (c *Config) PinnedVersions() []string {
	pins, _ := pinnedVersions(c.Conda.Pinning)
	return pins
}

// pinnedVersions validates the pinning string and renders name=version
// pairs.
func pinnedVersions(pinning string) ([]string, error) {
	for _, ch := range pinningForbidden {
		if strings.ContainsRune(pinning, ch) {
			return nil, &ValidationError{
				Field:  "conda.pinning",
				Reason: fmt.Sprintf("character %q must not be used in pinning", ch),
			}
		}
	}
	words := strings.Fields(pinning)
	if len(words)%2 != 0 {
		return nil, &ValidationError{
			Field:  "conda.pinning",
			Reason: "expected an even number of words, alternating package names and versions",
		}
	}
	pins := make([]string, 0, len(words)/2)
	for i := 0; i < len(words); i += 2 {
		pins = append(pins, words[i]+"="+words[i+1])
	}
	return pins, nil
}

// expandPath expands a leading ~ and $VAR references in a configured path.
func expandPath(path string, getenv func(string) string) string {
	if path == "~" {
		return getenv("HOME")
	}
	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(getenv("HOME"), path[2:])
	}
	return os.Expand(path, getenv)
}

// writeBack mirrors the computed fields into the merged tree so command
// templates can reference them by dotted path.
func (c *Config) writeBack() {
	c.tree.Set("project.name", c.Project.Name)
	c.tree.Set("conda.base_path", c.Conda.BasePath)
	c.tree.Set("conda.build_path", c.Conda.BuildPath)
	c.tree.Set("venv.base_path", c.Venv.BasePath)
	c.tree.Set("testenv.name", c.TestEnv.Name)
	c.tree.Set("testenv.path", c.TestEnv.Path)
	c.tree.Set("testenv.activate_file", c.TestEnv.ActivateFile)

	packages := make([]any, 0, len(c.Project.Packages))
	for _, pkg := range c.Project.Packages {
		tools := make([]any, 0, len(pkg.Tools))
		for _, name := range pkg.Tools {
			tools = append(tools, name)
		}
		packages = append(packages, map[string]any{
			"name":       pkg.Name,
			"path":       pkg.Path,
			"abs_path":   pkg.AbsPath,
			"conda_name": pkg.CondaName,
			"tools":      tools,
		})
	}
	c.tree.Set("project.packages", packages)

	c.tree.Set("git.describe", c.Git.Describe)
	c.tree.Set("git.tag", c.Git.Tag)
	c.tree.Set("git.tag_major", c.Git.TagMajor)
	c.tree.Set("git.tag_minor", c.Git.TagMinor)
	c.tree.Set("git.tag_patch", c.Git.TagPatch)
	c.tree.Set("git.tag_suffix", c.Git.TagSuffix)
	c.tree.Set("git.tag_version", c.Git.TagVersion)
	c.tree.Set("git.tag_soversion", c.Git.TagSoVersion)
	c.tree.Set("git.tag_stable", c.Git.TagStable)
	c.tree.Set("git.tag_test", c.Git.TagTest)
	c.tree.Set("git.tag_dev", c.Git.TagDev)
	c.tree.Set("git.tag_release", c.Git.TagRelease)
	c.tree.Set("git.deploy_label", c.Git.DeployLabel)
	c.tree.Set("git.branch", c.Git.Branch)
}
