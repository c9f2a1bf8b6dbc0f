package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// Result is the outcome of a finished pipeline process.
type Result struct {
	ExitCode int
	Err      error

	// Stderr holds the last lines the process wrote to stderr.
	Stderr   string
	Duration time.Duration
}

// Success reports whether the process exited cleanly.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Process is a pipeline run in flight.
type Process struct {
	RunID   string
	RunName string
	Started time.Time

	done chan Result
	once sync.Once
}

// NewProcess creates a process handle. Launchers call Finish exactly once
// when the run ends.
func NewProcess(runID, runName string) *Process {
	return &Process{
		RunID:   runID,
		RunName: runName,
		Started: time.Now(),
		done:    make(chan Result, 1),
	}
}

// Done delivers the result once the process has exited.
func (p *Process) Done() <-chan Result {
	return p.done
}

// Finish records the result. Calls after the first are ignored.
func (p *Process) Finish(r Result) {
	p.once.Do(func() {
		if r.Duration == 0 {
			r.Duration = time.Since(p.Started)
		}
		p.done <- r
		close(p.done)
	})
}

// Launcher starts pipeline invocations in the background.
type Launcher interface {
	Start(ctx context.Context, inv Invocation) (*Process, error)
}

// DockerLauncher runs invocations with the local docker CLI.
type DockerLauncher struct {
	// Binary is the docker executable. Default "docker".
	Binary string

	// Stdout receives the container's stdout. Default: discarded.
	Stdout io.Writer

	// TailLines is how many stderr lines are kept for the Result.
	TailLines int

	// StopTimeout is how long the client gets to stop the container after
	// ctx is cancelled before it is killed.
	StopTimeout time.Duration

	Logger *logging.Logger
}

// NewDockerLauncher returns a launcher with default settings.
func NewDockerLauncher(logger *logging.Logger) *DockerLauncher {
	return &DockerLauncher{
		Binary:      "docker",
		TailLines:   constants.StderrTailLines,
		StopTimeout: 30 * time.Second,
		Logger:      logger,
	}
}

// Start launches inv and returns immediately. Cancelling ctx interrupts the
// docker client, which forwards the signal to the container.
func (l *DockerLauncher) Start(ctx context.Context, inv Invocation) (*Process, error) {
	argv := inv.Command()
	if l.Binary != "" {
		argv[0] = l.Binary
	}

	stdout := l.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	tail := newTailWriter(l.TailLines)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = tail
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = l.StopTimeout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	proc := NewProcess(inv.RunID, inv.RunName)
	if l.Logger != nil {
		l.Logger.Info().
			Str("run", inv.RunName).
			Str("container", inv.ContainerName).
			Int("pid", cmd.Process.Pid).
			Msg("Pipeline started")
	}

	go func() {
		err := cmd.Wait()
		result := Result{
			ExitCode: exitCode(err),
			Stderr:   tail.String(),
			Duration: time.Since(proc.Started),
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			result.Err = err
		}
		if l.Logger != nil {
			l.Logger.Info().
				Str("run", inv.RunName).
				Int("exit_code", result.ExitCode).
				Dur("duration", result.Duration).
				Msg("Pipeline exited")
		}
		proc.Finish(result)
	}()

	return proc, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}

// tailWriter keeps the last n lines written to it.
type tailWriter struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial bytes.Buffer
}

func newTailWriter(n int) *tailWriter {
	if n <= 0 {
		n = constants.StderrTailLines
	}
	return &tailWriter{n: n}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial.Write(p)
	for {
		line, err := w.partial.ReadString('\n')
		if err != nil {
			// incomplete line, keep for the next write
			w.partial.Reset()
			w.partial.WriteString(line)
			break
		}
		w.push(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *tailWriter) push(line string) {
	w.lines = append(w.lines, line)
	if len(w.lines) > w.n {
		w.lines = w.lines[len(w.lines)-w.n:]
	}
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	lines := w.lines
	if w.partial.Len() > 0 {
		lines = append(append([]string(nil), lines...), w.partial.String())
		if len(lines) > w.n {
			lines = lines[len(lines)-w.n:]
		}
	}
	return strings.Join(lines, "\n")
}
