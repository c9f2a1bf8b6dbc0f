package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

// LogDirectory returns the directory for launcher logs.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\sippr-launcher\logs
//   - Unix: <config dir>/logs
//
// Falls back to the temp dir when no home directory can be found.
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, constants.ConfigDirName, "logs")
		}
	}
	if dir, err := DefaultConfigDir(); err == nil {
		return filepath.Join(dir, "logs")
	}
	return filepath.Join(os.TempDir(), constants.ConfigDirName+"-logs")
}

// EnsureLogDirectory creates the log directory with owner-only permissions.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}

// LogFilePath returns the launcher log file, honouring [logging] file.
func (cfg *Config) LogFilePath() string {
	if cfg.Logging.File != "" {
		return cfg.Logging.File
	}
	return filepath.Join(LogDirectory(), constants.LauncherLogFileName)
}
