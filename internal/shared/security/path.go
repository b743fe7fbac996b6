// Package security confines user-supplied file paths to a trusted directory.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape is returned when a relative path resolves outside its base.
	ErrPathEscape = errors.New("path escapes base directory")
	// ErrNoBase is returned when no base directory is provided.
	ErrNoBase = errors.New("base directory is required")
)

// ResolveWithin joins elems under base and returns the absolute result. It
// fails when the cleaned path leaves base, e.g. "../x" or "a/../../x".
func ResolveWithin(base string, elems ...string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", ErrNoBase
	}
	root, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base %q: %w", base, err)
	}

	target := filepath.Join(append([]string{root}, elems...)...)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("relativize %q: %w", target, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, filepath.Join(elems...))
	}
	return target, nil
}
