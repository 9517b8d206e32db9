package gitversion

import "strings"

// NoBranch is the branch sentinel used when every branch lookup fails.
const NoBranch = "unknown"

// Queryer runs a git subcommand and returns its trimmed stdout. A non-nil
// error means the command exited non-zero or could not run at all.
type Queryer func(args ...string) (string, error)

// DescribeString returns the `git describe --tags` output for the working
// tree, falling back to the NoTagDescribe sentinel when the repository has no
// tags. The absence of tags is a normal state for fresh repositories, not an
// error.
func DescribeString(query Queryer) string {
	out, err := query("describe", "--tags")
	if err != nil || strings.TrimSpace(out) == "" {
		return NoTagDescribe
	}
	return strings.TrimSpace(out)
}

// BranchName resolves the current branch name with ordered fallbacks, so
// branch-sensitive decisions still work on detached checkouts:
//
//  1. the symbolic branch name from rev-parse,
//  2. an exact tag match for the current commit,
//  3. the abbreviated commit id,
//  4. the NoBranch sentinel.
func BranchName(query Queryer) string {
	out, err := query("rev-parse", "--abbrev-ref", "HEAD")
	if err == nil {
		branch := strings.TrimSpace(out)
		if branch != "" && branch != "HEAD" {
			return branch
		}
	}

	// Detached HEAD: prefer an exact tag over a bare commit id.
	if out, err := query("describe", "--tags", "--exact-match"); err == nil {
		if tag := strings.TrimSpace(out); tag != "" {
			return tag
		}
	}

	if out, err := query("rev-parse", "--short", "HEAD"); err == nil {
		if id := strings.TrimSpace(out); id != "" {
			return id
		}
	}

	return NoBranch
}
