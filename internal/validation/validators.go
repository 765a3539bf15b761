// Package validation provides input validators for IDs that end up in file
// paths or JSON documents. It has no internal dependencies, so every other
// package can import it without creating an import cycle.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// pathSafeRegex matches alphanumeric characters, underscores, and hyphens only.
var pathSafeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSessionID validates that a session ID is non-empty and contains no
// path separators, preventing path traversal through session-scoped file names.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid session ID %q: contains path separators", id)
	}
	return nil
}

// ValidateEditID validates an AIEdit's UUIDv4 identifier is path-safe.
func ValidateEditID(id string) error {
	if id == "" {
		return errors.New("edit ID cannot be empty")
	}
	if !pathSafeRegex.MatchString(id) {
		return fmt.Errorf("invalid edit ID %q: must be alphanumeric with underscores/hyphens only", id)
	}
	return nil
}

// ValidatePath rejects empty paths and paths that attempt to escape the
// repository via ".." segments. Hook input paths are untrusted and must
// be validated before being used as map keys or file paths.
func ValidatePath(p string) error {
	if p == "" {
		return errors.New("path cannot be empty")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("invalid path %q: contains parent-directory traversal", p)
		}
	}
	return nil
}
