package config

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// defaultConfigYAML is the shipped default configuration: the
// project-kind-agnostic base tool definitions, merged as the second layer.
//
//go:embed default_config.yaml
var defaultConfigYAML []byte

// builtinDefaults is the first configuration layer: drover's own defaults.
func builtinDefaults() Tree {
	return Tree{
		"deploy":          false,
		"deploy_binary":   true,
		"deploy_noarch":   true,
		"upload_coverage": false,
		"run_history":     ".drover/history.db",
		"git": map[string]any{
			"merge_branch": "main",
		},
		"testenv": map[string]any{
			"use": "conda",
		},
		"conda": map[string]any{
			"base_path": "~/miniconda3",
			"pinning":   "",
			"channels":  []any{},
		},
		"venv": map[string]any{
			"base_path": "~/.drover/venvs",
		},
		"project": map[string]any{
			"packages": []any{},
		},
	}
}

// shippedDefaults parses the embedded default configuration layer.
func shippedDefaults() (Tree, error) {
	var tree Tree
	if err := yaml.Unmarshal(defaultConfigYAML, &tree); err != nil {
		return nil, fmt.Errorf("parse shipped default configuration: %w", err)
	}
	return tree, nil
}
