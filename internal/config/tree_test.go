package config

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestTreeGet(t *testing.T) {
	tree := Tree{
		"project": map[string]any{
			"name": "spam",
			"nested": map[string]any{
				"value": 42,
			},
		},
	}

	got, err := tree.Get("project.name")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if got != "spam" {
		t.Errorf("Get = %v, want spam", got)
	}

	got, err = tree.Get("project.nested.value")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if got != 42 {
		t.Errorf("Get = %v, want 42", got)
	}
}

func TestTreeGetNotFound(t *testing.T) {
	tree := Tree{"project": map[string]any{"name": "spam"}}

	for _, path := range []string{"missing", "project.missing", "project.name.below"} {
		_, err := tree.Get(path)
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("Get(%q) error = %v, want NotFoundError", path, err)
		}
	}
}

func TestTreeSet(t *testing.T) {
	tree := Tree{}
	tree.Set("a.b.c", "deep")
	got, err := tree.Get("a.b.c")
	if err != nil || got != "deep" {
		t.Errorf("Get after Set = %v, %v", got, err)
	}

	// Overwriting a scalar with a subtree.
	tree.Set("a.b.c.d", 1)
	if got, err := tree.Get("a.b.c.d"); err != nil || got != 1 {
		t.Errorf("Get after scalar replacement = %v, %v", got, err)
	}
}

func TestMergeScalarOverwrite(t *testing.T) {
	dst := Tree{"deploy": false, "project": map[string]any{"name": "old"}}
	Merge(dst, Tree{"deploy": true, "project": map[string]any{"name": "new"}})

	if got, _ := dst.Get("deploy"); got != true {
		t.Errorf("deploy = %v, want true", got)
	}
	if got, _ := dst.Get("project.name"); got != "new" {
		t.Errorf("project.name = %v, want new", got)
	}
}

func TestMergeDeep(t *testing.T) {
	dst := Tree{
		"conda": map[string]any{
			"base_path": "/opt/conda",
			"channels":  []any{"defaults"},
		},
	}
	Merge(dst, Tree{
		"conda": map[string]any{
			"pinning":  "python 3.11",
			"channels": []any{"conda-forge"},
		},
	})

	// Sibling scalars from both layers survive.
	if got, _ := dst.Get("conda.base_path"); got != "/opt/conda" {
		t.Errorf("conda.base_path = %v", got)
	}
	if got, _ := dst.Get("conda.pinning"); got != "python 3.11" {
		t.Errorf("conda.pinning = %v", got)
	}

	// Lists concatenate.
	channels, _ := dst.Get("conda.channels")
	list, isList := channels.([]any)
	if !isList || len(list) != 2 || list[0] != "defaults" || list[1] != "conda-forge" {
		t.Errorf("conda.channels = %v, want [defaults conda-forge]", channels)
	}
}

// decodeTree parses YAML the way the configuration layers do. yaml.v3 types
// nested mappings as Tree, not map[string]any, when the target is a Tree.
func decodeTree(t *testing.T, raw string) Tree {
	t.Helper()
	var tree Tree
	if err := yaml.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatalf("yaml.Unmarshal error = %v", err)
	}
	return tree
}

func TestTreeGetYAMLDecodedNodes(t *testing.T) {
	tree := decodeTree(t, "git:\n  merge_branch: main\n  nested:\n    depth: 2\n")

	if got, err := tree.Get("git.merge_branch"); err != nil || got != "main" {
		t.Errorf("Get(git.merge_branch) = %v, %v, want main", got, err)
	}
	if got, err := tree.Get("git.nested.depth"); err != nil || got != 2 {
		t.Errorf("Get(git.nested.depth) = %v, %v, want 2", got, err)
	}
}

func TestTreeSetKeepsYAMLDecodedSiblings(t *testing.T) {
	tree := decodeTree(t, "git:\n  merge_branch: develop\n")

	// Setting through a decoded node must not replace it.
	tree.Set("git.branch", "feature")

	if got, err := tree.Get("git.merge_branch"); err != nil || got != "develop" {
		t.Errorf("git.merge_branch = %v, %v, want develop", got, err)
	}
	if got, err := tree.Get("git.branch"); err != nil || got != "feature" {
		t.Errorf("git.branch = %v, %v, want feature", got, err)
	}
}

func TestMergeYAMLDecodedLayerIsDeep(t *testing.T) {
	dst := Tree{
		"tools": map[string]any{
			"pytest": map[string]any{
				"pip_requirements": []any{"pytest"},
				"phases": map[string]any{
					"test-inplace": []any{"pytest -v"},
				},
			},
		},
	}
	Merge(dst, decodeTree(t, "tools:\n  pytest:\n    pip_requirements: [pytest-xdist]\n"))

	// The decoded layer extends the tool instead of replacing it.
	if got, err := dst.Get("tools.pytest.phases.test-inplace"); err != nil || got == nil {
		t.Errorf("tools.pytest.phases.test-inplace = %v, %v, want preserved", got, err)
	}
	reqs, _ := dst.Get("tools.pytest.pip_requirements")
	list, isList := reqs.([]any)
	if !isList || len(list) != 2 || list[0] != "pytest" || list[1] != "pytest-xdist" {
		t.Errorf("pip_requirements = %v, want [pytest pytest-xdist]", reqs)
	}
}
