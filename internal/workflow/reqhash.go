package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// requirementHash digests the full set of environment inputs: requirement
// names, recipe directory contents and pip requirements. Each element is
// framed with its own length marker so distinct input sets can never collide
// by concatenation. Recipe directories contribute file names and contents,
// so editing a recipe invalidates the marker like adding a requirement does.
func requirementHash(condaReqs, recipeDirs, pipReqs []string) (string, error) {
	hash := sha256.New()

	write := func(kind, value string) {
		fmt.Fprintf(hash, "%s:%d:%s\n", kind, len(value), value)
	}

	for _, req := range sorted(condaReqs) {
		write("conda", req)
	}
	for _, dir := range sorted(recipeDirs) {
		entries, err := filepath.Glob(filepath.Join(dir, "*"))
		if err != nil {
			return "", fmt.Errorf("scan recipe directory %s: %w", dir, err)
		}
		sort.Strings(entries)
		for _, entry := range entries {
			info, err := os.Stat(entry)
			if err != nil {
				return "", fmt.Errorf("stat recipe file: %w", err)
			}
			if info.IsDir() {
				continue
			}
			data, err := os.ReadFile(entry)
			if err != nil {
				return "", fmt.Errorf("read recipe file: %w", err)
			}
			write("file", filepath.Base(entry))
			write("data", string(data))
		}
	}
	for _, req := range sorted(pipReqs) {
		write("pip", req)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// sorted returns a sorted copy, leaving the input untouched.
func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
