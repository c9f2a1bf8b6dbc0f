// Package diskspace checks free space on the volume that receives pipeline
// output before a run is launched.
package diskspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredGB := float64(e.RequiredBytes) / (1024 * 1024 * 1024)
	availableGB := float64(e.AvailableBytes) / (1024 * 1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f GB, have %.2f GB available",
		e.Path, requiredGB, availableGB)
}

// CheckAvailableSpace returns an *InsufficientSpaceError when the volume
// holding dir has less than requiredBytes*safetyMargin free. dir may not
// exist yet; its nearest existing parent is checked. When free space cannot
// be determined (network or virtual filesystems) the check passes.
func CheckAvailableSpace(dir string, requiredBytes int64, safetyMargin float64) error {
	if requiredBytes <= 0 {
		return nil
	}

	available, ok := availableBytes(existingParent(dir))
	if !ok {
		return nil
	}

	requiredWithMargin := int64(float64(requiredBytes) * safetyMargin)
	if available < requiredWithMargin {
		return &InsufficientSpaceError{
			Path:           dir,
			RequiredBytes:  requiredWithMargin,
			AvailableBytes: available,
		}
	}
	return nil
}

// GetAvailableSpace returns the free bytes for the volume holding path, or 0
// if unable to determine.
func GetAvailableSpace(path string) int64 {
	available, ok := availableBytes(existingParent(path))
	if !ok {
		return 0
	}
	return available
}

// IsInsufficientSpaceError checks if err is or wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}

func existingParent(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
