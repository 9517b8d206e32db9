package tool

import (
	"errors"
	"testing"

	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/gitversion"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(dir, func(string) string { return "" })
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	cfg.Set("project.name", "spam")
	cfg.Set("git.tag_version", "1.2.3")
	cfg.Set("git.merge_branch", "main")
	return cfg
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(map[string]config.ToolSpec{
		"pytest": {Phases: map[string][]string{"test-inplace": {"pytest -v"}}},
	})

	tool, err := reg.Lookup("pytest")
	if err != nil {
		t.Fatalf("Lookup error = %v", err)
	}
	if tool.Name != "pytest" {
		t.Errorf("Name = %q", tool.Name)
	}

	_, err = reg.Lookup("ghost")
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) || unknown.Name != "ghost" {
		t.Errorf("Lookup error = %v, want UnknownToolError for ghost", err)
	}
}

func TestFormat(t *testing.T) {
	cfg := testConfig(t)
	pkg := &config.Package{Name: "spam", Path: ".", AbsPath: "/work/spam", CondaName: "spam"}
	ctx := Context{Config: cfg, Package: pkg, Extra: map[string]string{"assets": "dist/a dist/b"}}

	tests := []struct {
		template string
		want     string
	}{
		{"pytest {package.name} -v", "pytest spam -v"},
		{"twine upload {assets}", "twine upload dist/a dist/b"},
		{"echo {config.project.name}-{config.git.tag_version}", "echo spam-1.2.3"},
		{"export PYTHONPATH={package.abs_path}", "export PYTHONPATH=/work/spam"},
		{"awk '{{print $1}}'", "awk '{print $1}'"},
		{"no placeholders", "no placeholders"},
	}
	for _, tt := range tests {
		got, err := Format(tt.template, ctx)
		if err != nil {
			t.Errorf("Format(%q) error = %v", tt.template, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Format(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestFormatUnknownPlaceholder(t *testing.T) {
	cfg := testConfig(t)
	ctx := Context{Config: cfg, Package: &config.Package{Name: "spam"}}

	for _, template := range []string{
		"echo {config.no.such.key}",
		"echo {package.owner}",
		"echo {undefined_extra}",
		"echo {unterminated",
	} {
		if _, err := Format(template, ctx); err == nil {
			t.Errorf("Format(%q) expected error", template)
		} else {
			var templateErr *TemplateError
			if !errors.As(err, &templateErr) {
				t.Errorf("Format(%q) error type = %T, want *TemplateError", template, err)
			}
		}
	}
}

func TestFormatListValue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Set("conda.channels", []any{"defaults", "conda-forge"})
	got, err := Format("channels: {config.conda.channels}", Context{Config: cfg})
	if err != nil {
		t.Fatalf("Format error = %v", err)
	}
	if got != "channels: defaults conda-forge" {
		t.Errorf("Format = %q", got)
	}
}

func TestNeedDeployment(t *testing.T) {
	tools := map[string]config.ToolSpec{
		"deploy-bin":    {Binary: true, DeployLabels: []string{"main", "test"}},
		"deploy-noarch": {DeployLabels: []string{"main"}},
	}
	reg := NewRegistry(tools)
	binTool, _ := reg.Lookup("deploy-bin")
	noarchTool, _ := reg.Lookup("deploy-noarch")

	tests := []struct {
		name   string
		tool   *Tool
		binary bool
		noarch bool
		label  gitversion.DeployLabel
		want   bool
	}{
		{"binary enabled, label allowed", binTool, true, false, gitversion.LabelMain, true},
		{"binary enabled, label not allowed", binTool, true, false, gitversion.LabelDev, false},
		{"binary disabled, label allowed", binTool, false, true, gitversion.LabelMain, false},
		{"binary disabled, label not allowed", binTool, false, true, gitversion.LabelDev, false},
		{"noarch enabled, label allowed", noarchTool, false, true, gitversion.LabelMain, true},
		{"noarch enabled, label not allowed", noarchTool, false, true, gitversion.LabelTest, false},
		{"noarch disabled, label allowed", noarchTool, true, false, gitversion.LabelMain, false},
		{"noarch disabled, label not allowed", noarchTool, true, false, gitversion.LabelTest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{DeployBinary: tt.binary, DeployNoarch: tt.noarch}
			if got := NeedDeployment(cfg, tt.tool, tt.label); got != tt.want {
				t.Errorf("NeedDeployment = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSupportsEnv(t *testing.T) {
	spec := config.ToolSpec{SupportedEnvs: []string{"conda"}}
	if !spec.SupportsEnv("conda") {
		t.Error("conda should be supported")
	}
	if spec.SupportsEnv("venv") {
		t.Error("venv should not be supported")
	}
	open := config.ToolSpec{}
	if !open.SupportsEnv("venv") {
		t.Error("empty supported_envs means every backend")
	}
}
