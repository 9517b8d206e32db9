package tool

import (
	"fmt"
	"strings"

	"github.com/callum/drover/internal/config"
)

// TemplateError reports a command template referencing a field that cannot
// be resolved from the formatting context. Unknown placeholders are always a
// configuration-authoring bug; they never silently substitute an empty
// string.
type TemplateError struct {
	Template    string
	Placeholder string
	Reason      string
}

// Error implements the error interface for TemplateError.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: placeholder %q: %s", e.Template, e.Placeholder, e.Reason)
}

// Context is the formatting context for command templates: the full
// configuration tree, the current package and any run-scoped extras
// (assets, deploy label, notes file).
type Context struct {
	Config  *config.Config
	Package *config.Package
	Extra   map[string]string
}

// Resolve looks up a placeholder path in the context. `config.` paths walk
// the configuration tree, `package.` paths address the current package and
// bare names address the extras.
func (c Context) Resolve(path string) (string, error) {
	if rest, found := strings.CutPrefix(path, "config."); found {
		if c.Config == nil {
			return "", fmt.Errorf("no configuration in context")
		}
		value, err := c.Config.Get(rest)
		if err != nil {
			return "", err
		}
		return renderValue(value)
	}

	if field, found := strings.CutPrefix(path, "package."); found {
		if c.Package == nil {
			return "", fmt.Errorf("no package in context")
		}
		switch field {
		case "name":
			return c.Package.Name, nil
		case "path":
			return c.Package.Path, nil
		case "abs_path":
			return c.Package.AbsPath, nil
		case "conda_name":
			return c.Package.CondaName, nil
		}
		return "", fmt.Errorf("package has no field %q", field)
	}

	if value, found := c.Extra[path]; found {
		return value, nil
	}
	return "", fmt.Errorf("not defined in context")
}

// Format substitutes {placeholder} references in a command template.
// Doubled braces escape literals. Any unresolvable placeholder fails with a
// TemplateError.
func Format(template string, ctx Context) (string, error) {
	var out strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.Contains(rest, "}}") {
				rest = strings.ReplaceAll(rest, "}}", "}")
			}
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(strings.ReplaceAll(rest[:open], "}}", "}"))
		rest = rest[open+1:]

		// {{ is a literal brace.
		if strings.HasPrefix(rest, "{") {
			out.WriteByte('{')
			rest = rest[1:]
			continue
		}

		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return "", &TemplateError{Template: template, Placeholder: rest, Reason: "unterminated placeholder"}
		}
		placeholder := rest[:end]
		rest = rest[end+1:]

		value, err := ctx.Resolve(placeholder)
		if err != nil {
			return "", &TemplateError{Template: template, Placeholder: placeholder, Reason: err.Error()}
		}
		out.WriteString(value)
	}
}

// renderValue renders a configuration value for command substitution.
// Lists render space-joined; nested sections are not substitutable.
func renderValue(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", typed), nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			part, err := renderValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return strings.Join(parts, " "), nil
	default:
		return "", fmt.Errorf("value of type %T is not substitutable", value)
	}
}
