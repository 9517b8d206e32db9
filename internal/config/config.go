// Package config builds drover's layered configuration.
//
// Four layers merge in order: built-in defaults, the shipped default
// configuration embedded in the binary, the project-local .drover.yaml and
// recognized DROVER_* environment variables. The merged tree is decoded into
// a typed schema for program logic and retained as a dotted-path-addressable
// tree for command templating.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/callum/drover/internal/gitversion"
)

// Config is the typed view of the merged configuration. One instance owns
// the whole tree for a run; task bodies mutate it only through Set to record
// run-scoped results.
type Config struct {
	Project ProjectConfig `yaml:"project"`
	Conda   CondaConfig   `yaml:"conda"`
	Venv    VenvConfig    `yaml:"venv"`
	TestEnv TestEnvConfig `yaml:"testenv"`
	Git     GitConfig     `yaml:"git"`

	// Deploy enables the deployment task tree; without it the default task
	// routes to the deploy-free variant.
	Deploy bool `yaml:"deploy"`
	// DeployBinary and DeployNoarch gate deployment of binary and
	// architecture-independent artifacts independently.
	DeployBinary bool `yaml:"deploy_binary"`
	DeployNoarch bool `yaml:"deploy_noarch"`

	// UploadCoverage enables the coverage upload step after in-place tests.
	UploadCoverage bool `yaml:"upload_coverage"`

	// RunHistory is the path of the run history database, relative to the
	// project root. Empty disables history recording.
	RunHistory string `yaml:"run_history"`

	Tools map[string]ToolSpec `yaml:"tools"`

	tree Tree
}

// ProjectConfig identifies the project and its distributable packages.
type ProjectConfig struct {
	Name     string    `yaml:"name"`
	Packages []Package `yaml:"packages"`
}

// Package is one distributable unit within the project.
type Package struct {
	// Name defaults to the project name.
	Name string `yaml:"name"`
	// Path is the package root relative to the project root, "." when
	// unset.
	Path string `yaml:"path"`
	// AbsPath is computed during finalization.
	AbsPath string `yaml:"abs_path"`
	// CondaName is the package-manager distribution name, if different.
	CondaName string `yaml:"conda_name"`
	// Tools names the registered tools that apply to this package.
	Tools []string `yaml:"tools"`
}

// CondaConfig configures the conda environment backend.
type CondaConfig struct {
	BasePath string   `yaml:"base_path"`
	Channels []string `yaml:"channels"`
	// Pinning is a whitespace-separated list alternating package names and
	// versions, constraining the initial environment.
	Pinning string `yaml:"pinning"`
	// BuildPath is computed during finalization (CONDA_BLD_PATH wins when
	// set in the environment).
	BuildPath string `yaml:"build_path"`
}

// VenvConfig configures the virtualenv backend.
type VenvConfig struct {
	BasePath string `yaml:"base_path"`
}

// TestEnvConfig selects and describes the active environment backend. Name,
// Path and ActivateFile are computed during finalization as deterministic
// functions of the configuration, so re-runs reuse environments and changed
// pins produce a distinct environment.
type TestEnvConfig struct {
	// Use selects the backend: conda, venv or none.
	Use          string `yaml:"use"`
	Name         string `yaml:"name"`
	Path         string `yaml:"path"`
	ActivateFile string `yaml:"activate_file"`
}

// GitConfig holds branch configuration and the version fields derived from
// `git describe` during finalization.
type GitConfig struct {
	// MergeBranch is the branch that merge requests target; linting is
	// stricter there.
	MergeBranch string `yaml:"merge_branch"`

	Branch       string `yaml:"branch"`
	Describe     string `yaml:"describe"`
	Tag          string `yaml:"tag"`
	TagMajor     int    `yaml:"tag_major"`
	TagMinor     int    `yaml:"tag_minor"`
	TagPatch     int    `yaml:"tag_patch"`
	TagSuffix    string `yaml:"tag_suffix"`
	TagVersion   string `yaml:"tag_version"`
	TagSoVersion string `yaml:"tag_soversion"`
	TagStable    bool   `yaml:"tag_stable"`
	TagTest      bool   `yaml:"tag_test"`
	TagDev       bool   `yaml:"tag_dev"`
	TagRelease   bool   `yaml:"tag_release"`
	DeployLabel  string `yaml:"deploy_label"`
}

// ToolSpec is a reusable bundle of command templates and metadata declared
// in configuration. Command lists are keyed by phase; a phase key absent
// from a tool simply contributes no commands to that phase.
type ToolSpec struct {
	Phases map[string][]string `yaml:"phases"`

	// SupportedEnvs restricts the tool to a subset of backends. Empty means
	// every backend. Unsupported pairings are skipped, not failed.
	SupportedEnvs []string `yaml:"supported_envs"`

	// Requirements contributed to the environment installation.
	CondaRequirements []string `yaml:"conda_requirements"`
	PipRequirements   []string `yaml:"pip_requirements"`

	// ExportPaths and ExportFlags declare environment variables exported
	// after a successful in-place build: directory values accumulate
	// colon-joined, flag values space-joined.
	ExportPaths map[string]string `yaml:"export_paths"`
	ExportFlags map[string]string `yaml:"export_flags"`

	// Deployment metadata.
	DeployLabels []string `yaml:"deploy_labels"`
	DeployVars   []string `yaml:"deploy_vars"`
	AssetPattern string   `yaml:"asset_pattern"`
	// DocBranch is the branch documentation deploys push to.
	DocBranch string `yaml:"doc_branch"`
	// Binary marks tools producing architecture-dependent artifacts; they
	// are gated by deploy_binary instead of deploy_noarch.
	Binary bool `yaml:"binary"`

	// Version file rendering for the write-version phase.
	VersionTemplate    string `yaml:"version_template"`
	VersionDestination string `yaml:"version_destination"`
}

// DeployLabelSet returns the tool's allowed deploy labels as the parser's
// label type.
func (s *ToolSpec) DeployLabelSet() map[gitversion.DeployLabel]bool {
	set := make(map[gitversion.DeployLabel]bool, len(s.DeployLabels))
	for _, label := range s.DeployLabels {
		set[gitversion.DeployLabel(label)] = true
	}
	return set
}

// SupportsEnv reports whether the tool supports the given backend.
func (s *ToolSpec) SupportsEnv(use string) bool {
	if len(s.SupportedEnvs) == 0 {
		return true
	}
	for _, env := range s.SupportedEnvs {
		if env == use {
			return true
		}
	}
	return false
}

// Get resolves a dotted path against the merged configuration tree.
func (c *Config) Get(path string) (any, error) {
	return c.tree.Get(path)
}

// Set records a value in the merged tree, keeping templated lookups in sync
// with run-scoped results.
func (c *Config) Set(path string, value any) {
	c.tree.Set(path, value)
}

// EffectiveYAML renders the merged configuration tree, for the config
// command.
func (c *Config) EffectiveYAML() (string, error) {
	out, err := yaml.Marshal(map[string]any(c.tree))
	if err != nil {
		return "", fmt.Errorf("render configuration: %w", err)
	}
	return string(out), nil
}

// decode refreshes the typed view from the merged tree by round-tripping
// through YAML.
func (c *Config) decode() error {
	raw, err := yaml.Marshal(map[string]any(c.tree))
	if err != nil {
		return fmt.Errorf("encode configuration tree: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("decode configuration tree: %w", err)
	}
	return nil
}
