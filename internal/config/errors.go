package config

import "fmt"

// ValidationError reports a user-actionable configuration problem, naming
// the offending field. Validation errors are fatal and detected before any
// task body runs.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
