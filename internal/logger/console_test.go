package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "warn")

	cl.Debugf("debug message")
	cl.Infof("info message")
	cl.Warnf("warn message")
	cl.Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn were not filtered:\n%s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("warn/error messages missing:\n%s", out)
	}
}

func TestDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "bogus")

	cl.Debugf("hidden")
	cl.Infof("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug shown at default level:\n%s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("info missing at default level:\n%s", out)
	}
}

func TestNilWriter(t *testing.T) {
	cl := NewConsoleLogger(nil, "debug")
	// Must not panic.
	cl.Infof("into the void")
}

func TestNoColorForBuffers(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")

	cl.Toolf("pytest", "spam")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("color escape written to a non-terminal writer:\n%q", buf.String())
	}
}

func TestCommandf(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info")
	cl.Commandf("pytest -v")
	if !strings.Contains(buf.String(), "$ pytest -v") {
		t.Errorf("command line missing:\n%s", buf.String())
	}
}
