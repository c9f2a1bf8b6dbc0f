// Package progress shows a running pipeline in the terminal: a spinner with
// the log line count on a TTY, plain status lines otherwise.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter follows one run.
type Reporter interface {
	Start(description string)
	Describe(description string)
	// Advance reports the current number of pipeline log lines.
	Advance(lines int)
	Finish(summary string)
	Error(err error)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// New returns a Spinner when f is a terminal and a LineReporter otherwise.
func New(f *os.File) Reporter {
	if IsTerminal(f) {
		return NewSpinner(f)
	}
	return NewLineReporter(f)
}

// Spinner renders an indeterminate progressbar spinner.
type Spinner struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewSpinner creates a spinner writing to w.
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

// Start shows the spinner.
func (s *Spinner) Start(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.w
	s.bar = progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("lines"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
}

// Describe replaces the spinner text.
func (s *Spinner) Describe(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		s.bar.Describe(description)
	}
}

// Advance sets the line counter.
func (s *Spinner) Advance(lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Set(lines)
	}
}

// Finish stops the spinner and prints summary.
func (s *Spinner) Finish(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Finish()
		s.bar = nil
	}
	if summary != "" {
		fmt.Fprintln(s.w, summary)
	}
}

// Error stops the spinner and prints err.
func (s *Spinner) Error(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Exit()
		s.bar = nil
	}
	if err != nil {
		fmt.Fprintf(s.w, "\nError: %v\n", err)
	}
}

// LineReporter prints one line per description change. Line counts are
// not printed, which keeps redirected output readable.
type LineReporter struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

// NewLineReporter creates a reporter writing to w.
func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

func (l *LineReporter) Start(description string) {
	l.Describe(description)
}

func (l *LineReporter) Describe(description string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if description == l.last {
		return
	}
	l.last = description
	fmt.Fprintln(l.w, description)
}

func (l *LineReporter) Advance(lines int) {}

func (l *LineReporter) Finish(summary string) {
	if summary != "" {
		l.mu.Lock()
		fmt.Fprintln(l.w, summary)
		l.mu.Unlock()
	}
}

func (l *LineReporter) Error(err error) {
	if err != nil {
		l.mu.Lock()
		fmt.Fprintf(l.w, "Error: %v\n", err)
		l.mu.Unlock()
	}
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) Start(string)    {}
func (NoOp) Describe(string) {}
func (NoOp) Advance(int)     {}
func (NoOp) Finish(string)   {}
func (NoOp) Error(error)     {}

var (
	_ Reporter = (*Spinner)(nil)
	_ Reporter = (*LineReporter)(nil)
	_ Reporter = NoOp{}
)
