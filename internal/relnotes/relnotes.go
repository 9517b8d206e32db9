// Package relnotes extracts the release-notes section for a version from a
// markdown changelog. The deploy phase hands the extracted section to
// release-upload tools as a notes file.
package relnotes

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// NotFoundError reports a changelog without a section for the requested
// version.
type NotFoundError struct {
	Version string
	Path    string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no changelog section for version %s in %s", e.Version, e.Path)
}

// Extract returns the changelog section whose heading mentions version. The
// section runs from the matching heading to the next heading of the same or
// a higher level, rendered as the original markdown source.
func Extract(source []byte, version string) (string, bool) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var start, stop, level int
	start = -1
	stop = len(source)

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, isHeading := n.(*ast.Heading)
		if !isHeading {
			return ast.WalkContinue, nil
		}
		line := headingText(heading, source)
		if start < 0 {
			if strings.Contains(line, version) {
				start = headingOffset(heading, source)
				level = heading.Level
			}
			return ast.WalkContinue, nil
		}
		if heading.Level <= level {
			stop = headingOffset(heading, source)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if start < 0 {
		return "", false
	}
	return strings.TrimSpace(string(source[start:stop])) + "\n", true
}

// ExtractFile reads a changelog and writes the section for version to dest.
func ExtractFile(path, version, dest string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read changelog: %w", err)
	}
	notes, found := Extract(source, version)
	if !found {
		return &NotFoundError{Version: version, Path: path}
	}
	if err := os.WriteFile(dest, []byte(notes), 0644); err != nil {
		return fmt.Errorf("write release notes: %w", err)
	}
	return nil
}

// headingText collects the literal text of a heading.
func headingText(heading *ast.Heading, source []byte) string {
	var buf bytes.Buffer
	for c := heading.FirstChild(); c != nil; c = c.NextSibling() {
		if t, isText := c.(*ast.Text); isText {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

// headingOffset returns the source offset of the heading line, including its
// hash markers.
func headingOffset(heading *ast.Heading, source []byte) int {
	lines := heading.Lines()
	if lines.Len() == 0 {
		return 0
	}
	offset := lines.At(0).Start
	// Walk back over the `## ` prefix to the start of the line.
	for offset > 0 && source[offset-1] != '\n' {
		offset--
	}
	return offset
}
