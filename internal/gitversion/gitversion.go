// Package gitversion derives structured version information from the output
// of `git describe --tags`.
//
// A describe string looks like `1.2.3`, `0.18.1b1` or `15.13.11a9-10-g7e2f1c`:
// the tag itself, optionally followed by the number of commits since the tag
// and an abbreviated commit id. The tag must consist of three dot-separated
// fields; the patch field may carry a trailing suffix such as `a7` or `b1`
// marking alpha and beta releases.
package gitversion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NoTagDescribe is the sentinel describe string used when the repository has
// no tags yet. It parses cleanly into a non-release 0.0.0 version, so fresh
// repositories are not treated as an error.
const NoTagDescribe = "0.0.0-0-notag"

// DeployLabel classifies a version for deployment channel selection.
type DeployLabel string

const (
	// LabelMain marks stable releases (empty suffix).
	LabelMain DeployLabel = "main"
	// LabelTest marks beta releases (suffix b<n>).
	LabelTest DeployLabel = "test"
	// LabelDev marks alpha releases (suffix a<n>).
	LabelDev DeployLabel = "dev"
	// LabelNone marks versions that are not deployed at all.
	LabelNone DeployLabel = ""
)

var (
	patchRe = regexp.MustCompile(`^([0-9]+)(.*)$`)
	betaRe  = regexp.MustCompile(`^b[0-9]+$`)
	alphaRe = regexp.MustCompile(`^a[0-9]+$`)
)

// Info holds the fields derived from one describe string. It is computed once
// per configuration build and never mutated afterwards.
type Info struct {
	Describe string // the raw describe string
	Tag      string // the tag portion of the describe string

	Major int
	Minor int
	Patch int

	// Suffix is the tag suffix with `.post<n>` appended when the describe
	// string reported commits past the tag.
	Suffix string

	// Version is `<major>.<minor>.<patch><suffix>`, a normalized version
	// string that sorts consistently with commit order for post releases.
	Version string
	// SoVersion is `<major>.<minor>`, used for shared-library versioning.
	SoVersion string

	// Release reports whether the tag itself (ignoring any post count) has a
	// release shape: an empty, alpha or beta suffix.
	Release bool

	// Exactly one of Stable, Test, Dev and NonRelease is true. They are
	// decided by a full match on Suffix, so a trailing `.post<n>` always
	// demotes a version to NonRelease.
	Stable     bool
	Test       bool
	Dev        bool
	NonRelease bool

	// DeployLabel is LabelMain, LabelTest or LabelDev for deployable
	// versions and LabelNone otherwise.
	DeployLabel DeployLabel
}

// TagError reports a describe string that does not have the expected shape.
type TagError struct {
	Describe string // the offending describe string
	Field    string // the field that failed to parse, if any
	Reason   string
}

// Error implements the error interface for TagError.
func (e *TagError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid tag %q: %s %s", e.Describe, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid tag %q: %s", e.Describe, e.Reason)
}

// Parse derives version information from a `git describe --tags` string.
// It returns a TagError when the string does not match the expected
// `<major>.<minor>.<patch>[suffix][-<commits>-<id>]` shape.
func Parse(describe string) (*Info, error) {
	describe = strings.TrimSpace(describe)

	// Anything after the first dash is describe metadata: the number of
	// commits since the tag and the abbreviated commit id.
	segments := strings.Split(describe, "-")
	tag := segments[0]

	fields := strings.Split(tag, ".")
	if len(fields) != 3 {
		return nil, &TagError{Describe: describe, Reason: "tag must have three dot-separated fields"}
	}

	major, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, &TagError{Describe: describe, Field: "major", Reason: "is not a number"}
	}
	minor, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, &TagError{Describe: describe, Field: "minor", Reason: "is not a number"}
	}

	m := patchRe.FindStringSubmatch(fields[2])
	if m == nil {
		return nil, &TagError{Describe: describe, Field: "patch", Reason: "must start with a number"}
	}
	patch, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &TagError{Describe: describe, Field: "patch", Reason: "is not a number"}
	}
	suffix := m[2]

	// The tag itself is release-shaped when its own suffix is empty, alpha
	// or beta. Post counts are folded in below and may still demote the
	// final classification.
	release := suffix == "" || alphaRe.MatchString(suffix) || betaRe.MatchString(suffix)

	if len(segments) > 1 {
		post, err := strconv.Atoi(segments[1])
		if err != nil {
			return nil, &TagError{Describe: describe, Field: "commit count", Reason: "is not a number"}
		}
		suffix += ".post" + strconv.Itoa(post)
	}

	info := &Info{
		Describe:  describe,
		Tag:       tag,
		Major:     major,
		Minor:     minor,
		Patch:     patch,
		Suffix:    suffix,
		Version:   fmt.Sprintf("%d.%d.%d%s", major, minor, patch, suffix),
		SoVersion: fmt.Sprintf("%d.%d", major, minor),
		Release:   release,
	}

	switch {
	case suffix == "":
		info.Stable = true
		info.DeployLabel = LabelMain
	case betaRe.MatchString(suffix):
		info.Test = true
		info.DeployLabel = LabelTest
	case alphaRe.MatchString(suffix):
		info.Dev = true
		info.DeployLabel = LabelDev
	default:
		info.NonRelease = true
		info.DeployLabel = LabelNone
	}

	return info, nil
}
