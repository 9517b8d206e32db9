package config

import (
	"fmt"
	"strings"
)

// Tree is one layer of raw configuration: a nested string-keyed mapping as
// decoded from YAML. The merged tree stays addressable by dotted paths so
// command templates can reference any configured value.
type Tree map[string]any

// NotFoundError reports a lookup of a configuration path that is not set.
type NotFoundError struct {
	Path string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("configuration key %q is not set", e.Path)
}

// node unwraps a nested mapping. yaml.v3 decodes nested mappings inside a
// Tree as Tree values, while literal layers carry map[string]any; both are
// the same node shape.
func node(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case Tree:
		return typed, true
	}
	return nil, false
}

// Get resolves a dotted path into the tree. Unset keys are an error, never a
// silent zero value.
func (t Tree) Get(path string) (any, error) {
	current := map[string]any(t)
	keys := strings.Split(path, ".")
	for i, key := range keys {
		value, found := current[key]
		if !found {
			return nil, &NotFoundError{Path: path}
		}
		if i == len(keys)-1 {
			return value, nil
		}
		next, isNode := node(value)
		if !isNode {
			return nil, &NotFoundError{Path: path}
		}
		current = next
	}
	return nil, &NotFoundError{Path: path}
}

// Set stores a value at a dotted path, creating intermediate nodes. An
// existing scalar in the middle of the path is replaced by a node.
func (t Tree) Set(path string, value any) {
	current := map[string]any(t)
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, isNode := node(current[key])
		if !isNode {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}

// Merge folds src into dst. Nested maps merge recursively and lists
// concatenate, so later layers extend rather than clobber structured values;
// scalars from later layers overwrite earlier ones.
func Merge(dst, src Tree) {
	for key, newValue := range src {
		oldValue, exists := dst[key]
		if !exists {
			dst[key] = newValue
			continue
		}
		if newNode, isNode := node(newValue); isNode {
			if oldNode, isNode := node(oldValue); isNode {
				Merge(oldNode, newNode)
				continue
			}
			dst[key] = newValue
			continue
		}
		if newList, isList := newValue.([]any); isList {
			if oldList, isList := oldValue.([]any); isList {
				dst[key] = append(append([]any{}, oldList...), newList...)
				continue
			}
			dst[key] = newValue
			continue
		}
		dst[key] = newValue
	}
}
