// Package validation checks user-supplied names before they are joined
// into launcher paths.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidRunName is wrapped by every RunName failure.
var ErrInvalidRunName = errors.New("invalid run name")

// RunName checks that name is a single path element, the form MiSeq run
// folder names take. It is used before building <output_dir>/<run>/reports
// from a name typed on the command line.
//
// Returns an error if the name:
//   - Is empty
//   - Contains path separators (/ or \)
//   - Is "." or ".."
//   - Contains null bytes
func RunName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidRunName)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: contains null byte: %q", ErrInvalidRunName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: must be a folder name, not a path: %s", ErrInvalidRunName, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %s", ErrInvalidRunName, name)
	}
	return nil
}

// PathInDirectory checks that path, resolved against baseDir when relative,
// stays within baseDir.
//
//	PathInDirectory("../../etc/passwd", "/srv/out") // error: escapes base dir
//	PathInDirectory("run1/reports", "/srv/out")     // ok
func PathInDirectory(path, baseDir string) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if baseDir == "" {
		return errors.New("base directory cannot be empty")
	}

	base, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}
	return nil
}
