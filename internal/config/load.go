package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the name of the project-local override file, looked up in
// the project root.
const ProjectFile = ".drover.yaml"

// envOverrides maps recognized environment variables to configuration
// paths. Arbitrary environment variables are never absorbed into the
// configuration.
var envOverrides = []struct {
	Name string
	Path string
	Bool bool
}{
	{"DROVER_DEPLOY", "deploy", true},
	{"DROVER_DEPLOY_BINARY", "deploy_binary", true},
	{"DROVER_DEPLOY_NOARCH", "deploy_noarch", true},
	{"DROVER_UPLOAD_COVERAGE", "upload_coverage", true},
	{"DROVER_TESTENV_USE", "testenv.use", false},
	{"DROVER_CONDA_PINNING", "conda.pinning", false},
	{"DROVER_CONDA_BASE_PATH", "conda.base_path", false},
	{"DROVER_VENV_BASE_PATH", "venv.base_path", false},
	{"DROVER_MERGE_BRANCH", "git.merge_branch", false},
}

// Load assembles the configuration for a project rooted at dir by merging
// the four layers in order: built-in defaults, shipped defaults, the
// project-local override file (when present) and recognized environment
// variables. getenv is os.Getenv in production. The result still needs
// Finalize before use.
func Load(dir string, getenv func(string) string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ProjectFile), getenv)
}

// LoadFile is Load with an explicit project file path, for the --config
// flag.
func LoadFile(path string, getenv func(string) string) (*Config, error) {
	tree := builtinDefaults()

	shipped, err := shippedDefaults()
	if err != nil {
		return nil, err
	}
	Merge(tree, shipped)

	// The project layer is loaded separately and merged after the defaults,
	// so it can both extend (lists, nested maps) and override (scalars).
	project, err := loadProjectFile(path)
	if err != nil {
		return nil, err
	}
	if project != nil {
		Merge(tree, project)
	}

	if err := applyEnvOverrides(tree, getenv); err != nil {
		return nil, err
	}

	cfg := &Config{tree: tree}
	if err := cfg.decode(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadProjectFile reads the project-local override file. A missing file is
// normal and returns a nil tree.
func loadProjectFile(path string) (Tree, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var tree Tree
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tree, nil
}

// applyEnvOverrides merges recognized environment variables as the last
// layer.
func applyEnvOverrides(tree Tree, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, override := range envOverrides {
		value := getenv(override.Name)
		if value == "" {
			continue
		}
		if override.Bool {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				return &ValidationError{
					Field:  override.Name,
					Reason: fmt.Sprintf("expected a boolean, got %q", value),
				}
			}
			tree.Set(override.Path, parsed)
			continue
		}
		tree.Set(override.Path, value)
	}
	return nil
}
