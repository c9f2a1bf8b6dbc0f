package runfolder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

// Sentinel errors for run folder checks.
var (
	ErrInvalidRunFolder = errors.New("invalid run folder")
	ErrNotReady         = errors.New("run folder not ready")
)

// InvalidRunFolderError is returned when a folder has no completed cycles.
type InvalidRunFolderError struct {
	Path string
}

func (e *InvalidRunFolderError) Error() string {
	return fmt.Sprintf("%s: no completed cycle directories under %s",
		e.Path, filepath.FromSlash(constants.CycleGlob))
}

func (e *InvalidRunFolderError) Unwrap() error {
	return ErrInvalidRunFolder
}

// NotReadyError is returned when fewer cycles than required have completed.
type NotReadyError struct {
	Name     string
	Cycles   int
	Required int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("run %s has completed %d of %d cycles required for analysis",
		e.Name, e.Cycles, e.Required)
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// RunFolder describes a selected run folder. A new value is created on every
// folder selection.
type RunFolder struct {
	// Name is the folder's base name, which is also the run name.
	Name string

	// BasePath is the parent directory of the run folder.
	BasePath string

	// Path is the full run folder path.
	Path string

	Cycles  int
	Forward ReadLength
	Reverse ReadLength

	// Valid is true when at least one completed cycle was found.
	Valid bool
}

// RequiredCycles returns the cycle count needed before analysis may start,
// or 0 when the forward length is unknown.
func (rf *RunFolder) RequiredCycles() int {
	if !rf.Forward.Known() {
		return 0
	}
	return int(rf.Forward) + constants.IndexCycleMargin
}

// Ready reports whether the readiness gate holds for this folder.
func (rf *RunFolder) Ready() bool {
	if !rf.Valid {
		return false
	}
	if !rf.Forward.Known() {
		return true
	}
	return Ready(rf.Cycles, int(rf.Forward))
}

// ReverseAvailable reports whether the reverse read has been fully sequenced.
func (rf *RunFolder) ReverseAvailable() bool {
	if !rf.Forward.Known() || !rf.Reverse.Known() {
		return false
	}
	return rf.Cycles >= int(rf.Forward)+constants.IndexCycleMargin+int(rf.Reverse)
}

// Ready is the readiness gate: cycles >= forward + IndexCycleMargin.
func Ready(cycles, forward int) bool {
	return cycles >= forward+constants.IndexCycleMargin
}

// CountCycles returns the number of completed-cycle directories in runPath.
func CountCycles(runPath string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(runPath, filepath.FromSlash(constants.CycleGlob)))
	if err != nil {
		return 0, fmt.Errorf("failed to list cycle directories: %w", err)
	}

	count := 0
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.IsDir() {
			count++
		}
	}
	return count, nil
}

// Inspect builds a RunFolder for runPath. It returns an
// *InvalidRunFolderError when no cycles have completed; in that case the
// returned RunFolder is still populated with Valid=false.
func Inspect(runPath string) (*RunFolder, error) {
	abs, err := filepath.Abs(runPath)
	if err != nil {
		abs = filepath.Clean(runPath)
	}

	rf := &RunFolder{
		Name:     filepath.Base(abs),
		BasePath: filepath.Dir(abs),
		Path:     abs,
		Forward:  FullLength,
		Reverse:  FullLength,
	}

	cycles, err := CountCycles(abs)
	if err != nil {
		return rf, err
	}
	rf.Cycles = cycles
	if cycles == 0 {
		return rf, &InvalidRunFolderError{Path: abs}
	}

	rf.Valid = true
	rf.Forward, rf.Reverse = ParseRunInfo(abs)
	return rf, nil
}

// Evaluate inspects runPath and applies the readiness gate. The returned
// error is an *InvalidRunFolderError or a *NotReadyError when the folder
// cannot be analysed yet.
func Evaluate(runPath string) (*RunFolder, error) {
	rf, err := Inspect(runPath)
	if err != nil {
		return rf, err
	}
	if !rf.Ready() {
		return rf, &NotReadyError{Name: rf.Name, Cycles: rf.Cycles, Required: rf.RequiredCycles()}
	}
	return rf, nil
}
