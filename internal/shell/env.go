package shell

import (
	"fmt"
	"sort"
	"strings"
)

// Env is an explicit environment overlay threaded through a run. Task bodies
// accumulate exported variables here instead of mutating the process
// environment; the overlay only becomes real environment variables at
// command invocation time.
type Env map[string]string

// Clone returns an independent copy of the overlay.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// AppendPath adds a directory to a colon-joined path-like variable,
// accumulating rather than overwriting.
func (e Env) AppendPath(name, dir string) {
	if cur, found := e[name]; found {
		e[name] = cur + ":" + dir
	} else {
		e[name] = dir
	}
}

// AppendFlags adds entries to a space-joined flag-like variable, accumulating
// rather than overwriting.
func (e Env) AppendFlags(name, flags string) {
	if cur, found := e[name]; found {
		e[name] = cur + " " + flags
	} else {
		e[name] = flags
	}
}

// Overlay applies the overlay on top of a base environment in the
// KEY=VALUE form used by os/exec. Overlay values win over base values.
func (e Env) Overlay(base []string) []string {
	if len(e) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(e))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, shadowed := e[name]; !shadowed {
			out = append(out, kv)
		}
	}
	for _, name := range e.Names() {
		out = append(out, fmt.Sprintf("%s=%s", name, e[name]))
	}
	return out
}

// Names returns the variable names in sorted order, for deterministic
// overlays and activate-file output.
func (e Env) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
