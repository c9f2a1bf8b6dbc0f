// Package logmonitor follows the pipeline log file. The file is written by
// the container and re-read in full on every poll; partial or missing
// content is normal while the pipeline starts up.
package logmonitor

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// ErrDisplayClosed is returned by a Display whose view has been torn down.
var ErrDisplayClosed = errors.New("display closed")

// Display shows the current log text.
type Display interface {
	SetText(text string) error
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string) error

func (f DisplayFunc) SetText(text string) error { return f(text) }

// State is what the monitor has extracted from the log so far.
type State struct {
	Lines       []string
	SampleSheet string
	Complete    bool
}

// Text returns the log as one string.
func (s State) Text() string {
	return strings.Join(s.Lines, "\n")
}

// Options configures a Monitor.
type Options struct {
	// Path is the log file written by the pipeline.
	Path string

	// SampleSheetMarker precedes the sample sheet path. Default "SampleSheet:".
	SampleSheetMarker string

	// CompletionMarker marks a finished pipeline. Empty disables detection.
	CompletionMarker string

	Display Display
	Logger  *logging.Logger
}

// Monitor polls the pipeline log.
type Monitor struct {
	mu     sync.Mutex
	opts   Options
	state  State
	logger *logging.Logger
}

// New creates a monitor.
func New(opts Options) *Monitor {
	if opts.SampleSheetMarker == "" {
		opts.SampleSheetMarker = constants.DefaultSampleSheetMarker
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Monitor{opts: opts, logger: logger}
}

// Path returns the monitored log path.
func (m *Monitor) Path() string {
	return m.opts.Path
}

// CompletionMarker returns the marker that ends a run.
func (m *Monitor) CompletionMarker() string {
	return m.opts.CompletionMarker
}

// SetDisplay replaces the display. nil detaches it.
func (m *Monitor) SetDisplay(d Display) {
	m.mu.Lock()
	m.opts.Display = d
	m.mu.Unlock()
}

// Poll re-reads the log, updates the state and pushes the text to the
// display. A missing file yields an empty state and no error.
func (m *Monitor) Poll() (State, error) {
	data, err := os.ReadFile(m.opts.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return m.Snapshot(), fmt.Errorf("failed to read pipeline log: %w", err)
	}

	lines := splitLines(string(data))
	next := State{
		Lines:       lines,
		SampleSheet: ExtractValue(lines, m.opts.SampleSheetMarker),
		Complete:    m.opts.CompletionMarker != "" && containsMarker(lines, m.opts.CompletionMarker),
	}

	m.mu.Lock()
	m.state = next
	display := m.opts.Display
	m.mu.Unlock()

	m.show(display, next.Text())
	return copyState(next), nil
}

// show pushes text to the display. A display that has gone away is ignored.
func (m *Monitor) show(d Display, text string) {
	if d == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Debug().Interface("panic", r).Msg("Log display panicked, ignoring")
		}
	}()
	if err := d.SetText(text); err != nil {
		m.logger.Debug().Err(err).Msg("Log display unavailable, ignoring")
	}
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state)
}

// Clear removes the log file and resets the state. A missing file is not
// an error.
func (m *Monitor) Clear() error {
	m.mu.Lock()
	m.state = State{}
	m.mu.Unlock()

	if m.opts.Path == "" {
		return nil
	}
	if err := os.Remove(m.opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear pipeline log: %w", err)
	}
	return nil
}

// ExtractValue returns the last whitespace-separated token after marker on
// the first line that has one, or "" when no line does.
func ExtractValue(lines []string, marker string) string {
	if marker == "" {
		return ""
	}
	for _, line := range lines {
		idx := strings.Index(line, marker)
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+len(marker):])
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	}
	return ""
}

func containsMarker(lines []string, marker string) bool {
	for _, line := range lines {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	s = strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func copyState(s State) State {
	s.Lines = append([]string(nil), s.Lines...)
	return s
}
