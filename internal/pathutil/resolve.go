// Package pathutil resolves paths typed by the user on the command line.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveAbsolutePath expands a leading ~ and makes path absolute. An empty
// path resolves to the working directory.
//
// Symlinks are left alone: run folders usually live on a NAS mount and the
// pipeline's bind mounts are matched against the path as configured.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	return filepath.Abs(path)
}
