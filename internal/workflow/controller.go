package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/olcbioinformatics/sippr-launcher/internal/archive"
	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/diskspace"
	"github.com/olcbioinformatics/sippr-launcher/internal/events"
	"github.com/olcbioinformatics/sippr-launcher/internal/history"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
	"github.com/olcbioinformatics/sippr-launcher/internal/logmonitor"
	"github.com/olcbioinformatics/sippr-launcher/internal/mail"
	"github.com/olcbioinformatics/sippr-launcher/internal/notify"
	"github.com/olcbioinformatics/sippr-launcher/internal/pipeline"
	"github.com/olcbioinformatics/sippr-launcher/internal/report"
	"github.com/olcbioinformatics/sippr-launcher/internal/runfolder"
)

// RunRecorder stores launched runs. *history.Store implements it.
type RunRecorder interface {
	Begin(ctx context.Context, runName, folder string) (string, error)
	Finish(ctx context.Context, id, state, reportPath, errMsg string) error
}

// ReportMailer announces finished reports. *mail.Sender implements it.
type ReportMailer interface {
	ReportReady(ctx context.Context, msg mail.ReportMessage) error
}

// Options wires the controller's collaborators. Builder, Launcher, Monitor,
// Aggregator and Renderer are required; the rest may be nil.
type Options struct {
	Builder    *pipeline.Builder
	Launcher   pipeline.Launcher
	Monitor    *logmonitor.Monitor
	Aggregator *report.Aggregator
	Renderer   report.Renderer

	Bus      *events.EventBus
	Notifier *notify.Notifier
	Archiver archive.Uploader
	Mailer   ReportMailer
	History  RunRecorder
	Logger   *logging.Logger

	OutputDir    string
	ReportSuffix string
	Logo         string
	Footer       string

	// ExportYAML writes a YAML copy of the report next to the PDF.
	ExportYAML bool

	// MinFreeBytes is required on the output volume before launch. 0 disables.
	MinFreeBytes int64

	// PollInterval drives the internal log ticker. <= 0 disables it and
	// callers drive Poll themselves.
	PollInterval time.Duration

	// GracePolls is how many polls a process that exited 0 may go without
	// the completion marker before the run is failed.
	GracePolls int

	Now func() time.Time
}

// activeRun is the run between Launch and its final state.
type activeRun struct {
	inv       pipeline.Invocation
	proc      *pipeline.Process
	historyID string
	started   time.Time
	result    *pipeline.Result
	exitPolls int
	lastLines int
	stopPoll  context.CancelFunc
}

// Controller is the run lifecycle state machine. All state changes are
// serialised by one mutex; observers follow along on the event bus.
type Controller struct {
	mu     sync.Mutex
	opts   Options
	state  State
	folder *runfolder.RunFolder
	run    *activeRun
	bus    *events.EventBus
	logger *logging.Logger
	now    func() time.Time

	// deliveries tracks archive uploads and mail still in flight after
	// the controller went back to Idle.
	deliveries sync.WaitGroup
}

// New creates a controller in the Idle state.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Builder == nil:
		return nil, errors.New("workflow: pipeline builder is required")
	case opts.Launcher == nil:
		return nil, errors.New("workflow: launcher is required")
	case opts.Monitor == nil:
		return nil, errors.New("workflow: log monitor is required")
	case opts.Aggregator == nil:
		return nil, errors.New("workflow: report aggregator is required")
	case opts.Renderer == nil:
		return nil, errors.New("workflow: report renderer is required")
	}

	c := &Controller{
		opts:   opts,
		state:  StateIdle,
		bus:    opts.Bus,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if c.bus == nil {
		c.bus = events.NewEventBus(constants.EventBusDefaultBuffer)
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	c.logger = c.logger.Component("workflow")
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Events returns the bus the controller publishes on.
func (c *Controller) Events() *events.EventBus {
	return c.bus
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Controls returns the actions currently allowed.
func (c *Controller) Controls() Controls {
	return ControlsFor(c.State())
}

// Folder returns a copy of the selected run folder, or nil.
func (c *Controller) Folder() *runfolder.RunFolder {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.folder == nil {
		return nil
	}
	rf := *c.folder
	return &rf
}

// transition must be called with c.mu held.
func (c *Controller) transition(next State) error {
	if !c.state.CanTransitionTo(next) {
		return transitionError(c.state, next)
	}
	prev := c.state
	c.state = next

	var runID, runName string
	if c.run != nil {
		runID, runName = c.run.inv.RunID, c.run.inv.RunName
	} else if c.folder != nil {
		runName = c.folder.Name
	}

	c.logger.Debug().
		Str("from", prev.String()).
		Str("to", next.String()).
		Str("run", runName).
		Msg("State change")

	c.bus.PublishStateChange(runID, runName, prev.String(), next.String())
	ctl := ControlsFor(next)
	c.bus.PublishControls(ctl.SelectFolder, ctl.Launch)
	return nil
}

// SelectFolder evaluates path and moves to Ready or Invalid. The error is
// the readiness failure (runfolder.ErrInvalidRunFolder or
// runfolder.ErrNotReady) when the folder cannot be launched.
func (c *Controller) SelectFolder(path string) (*runfolder.RunFolder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return nil, ErrRunInProgress
	}
	c.folder = nil
	if err := c.transition(StateFolderSelected); err != nil {
		return nil, err
	}

	rf, err := runfolder.Evaluate(path)
	c.folder = rf
	if err != nil {
		_ = c.transition(StateInvalid)
		c.logger.Warn().Err(err).Str("path", path).Msg("Run folder rejected")
		c.bus.PublishMessage(events.WarnLevel, folderErrorTitle(err), err.Error())
		return rf, err
	}

	if !rf.Forward.Known() {
		c.logger.Warn().
			Str("run", rf.Name).
			Msg("RunInfo.xml missing or unreadable; read length unknown, skipping readiness gate")
	}
	c.logger.Info().
		Str("run", rf.Name).
		Int("cycles", rf.Cycles).
		Str("forward", rf.Forward.String()).
		Str("reverse", rf.Reverse.String()).
		Msg("Run folder ready")

	_ = c.transition(StateReady)
	return rf, nil
}

func folderErrorTitle(err error) string {
	if errors.Is(err, runfolder.ErrNotReady) {
		return "Run not ready"
	}
	return "Invalid run folder"
}

// Launch starts the pipeline for the selected folder. ctx governs the
// pipeline process; cancelling it stops the container.
func (c *Controller) Launch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return ErrRunInProgress
	}
	if c.state != StateReady {
		return transitionError(c.state, StateRunning)
	}
	rf := c.folder

	if err := diskspace.CheckAvailableSpace(c.opts.OutputDir, c.opts.MinFreeBytes, constants.DiskSpaceSafetyMargin); err != nil {
		c.launchFailed(rf.Name, "Not enough disk space", err)
		return err
	}

	inv, err := c.opts.Builder.Build(rf)
	if err != nil {
		c.launchFailed(rf.Name, "Cannot build pipeline command", err)
		return err
	}

	// A log left by an earlier run would carry its completion marker
	if err := c.opts.Monitor.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to clear previous pipeline log")
	}

	proc, err := c.opts.Launcher.Start(ctx, inv)
	if err != nil {
		err = fmt.Errorf("failed to start pipeline: %w", err)
		c.launchFailed(rf.Name, "Pipeline did not start", err)
		return err
	}

	run := &activeRun{
		inv:     inv,
		proc:    proc,
		started: c.now(),
	}
	if c.opts.History != nil {
		id, err := c.opts.History.Begin(ctx, inv.RunName, rf.Path)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record run in history")
		}
		run.historyID = id
	}

	pollCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	run.stopPoll = stop
	c.run = run
	_ = c.transition(StateRunning)

	c.logger.Info().
		Str("run", inv.RunName).
		Str("run_id", inv.RunID).
		Str("command", inv.String()).
		Msg("Pipeline launched")

	if c.opts.PollInterval > 0 {
		go c.pollLoop(pollCtx, run)
	}
	return nil
}

func (c *Controller) launchFailed(runName, title string, err error) {
	c.logger.Error().Err(err).Str("run", runName).Msg(title)
	c.bus.PublishError(runName, "launch", err)
	c.bus.PublishMessage(events.ErrorLevel, title, err.Error())
}

func (c *Controller) pollLoop(ctx context.Context, run *activeRun) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil {
				c.logger.Debug().Err(err).Msg("Run ended with error")
			}
			if !c.isCurrent(run) {
				return
			}
		}
	}
}

func (c *Controller) isCurrent(run *activeRun) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run == run
}

// Poll performs one monitoring step: it observes the process exit, re-reads
// the log and reconciles the two. Outside Running it does nothing.
//
// The run moves to Reporting once the completion marker is in the log and
// the process exited 0. A non-zero exit fails the run at once; a clean exit
// without the marker fails it after GracePolls further polls. A marker seen
// while the process is still running waits for the exit.
func (c *Controller) Poll(ctx context.Context) error {
	c.mu.Lock()
	run := c.run
	if c.state != StateRunning || run == nil {
		c.mu.Unlock()
		return nil
	}

	// Exit is observed before the log is read so the read sees the final file
	if run.result == nil {
		select {
		case r, ok := <-run.proc.Done():
			if !ok {
				r = pipeline.Result{ExitCode: -1, Err: errors.New("process ended without a result")}
			}
			run.result = &r
		default:
		}
	}

	st, err := c.opts.Monitor.Poll()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Pipeline log poll failed")
	}
	if len(st.Lines) != run.lastLines {
		run.lastLines = len(st.Lines)
		c.bus.PublishLog(run.inv.RunName, st.Text(), len(st.Lines))
	}

	switch {
	case run.result != nil && !run.result.Success():
		err := fmt.Errorf("%w: %s", ErrPipelineFailed, describeResult(*run.result))
		c.failLocked(ctx, run, err)
		c.mu.Unlock()
		return err

	case run.result != nil && st.Complete:
		_ = c.transition(StateReporting)
		c.mu.Unlock()
		return c.finishReport(ctx, run, st)

	case run.result != nil:
		run.exitPolls++
		if run.exitPolls > c.opts.GracePolls {
			err := fmt.Errorf("%w: process exited with status 0 but %q never appeared in the log",
				ErrPipelineFailed, c.completionMarker())
			c.failLocked(ctx, run, err)
			c.mu.Unlock()
			return err
		}
	}

	c.mu.Unlock()
	return nil
}

func (c *Controller) completionMarker() string {
	return c.opts.Monitor.CompletionMarker()
}

func describeResult(r pipeline.Result) string {
	var b strings.Builder
	if r.Err != nil && r.ExitCode < 0 {
		fmt.Fprintf(&b, "could not run: %v", r.Err)
	} else {
		fmt.Fprintf(&b, "exit status %d", r.ExitCode)
	}
	if tail := lastLine(r.Stderr); tail != "" {
		b.WriteString(": " + tail)
	}
	return b.String()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// failLocked ends run in Failed. c.mu must be held.
func (c *Controller) failLocked(ctx context.Context, run *activeRun, err error) {
	run.stopPoll()
	_ = c.transition(StateFailed)
	c.run = nil

	name := run.inv.RunName
	c.logger.Error().Err(err).Str("run", name).Msg("Run failed")
	c.bus.PublishError(name, "pipeline", err)
	c.bus.PublishMessage(events.ErrorLevel, "Run failed", err.Error())
	if c.opts.Notifier != nil {
		c.opts.Notifier.RunFailed(name, err.Error())
	}
	c.record(ctx, run, history.StateFailed, "", err.Error())
	c.bus.PublishComplete(run.inv.RunID, name, "", false, c.now().Sub(run.started))
}

// finishReport builds the report, publishes it and returns to Idle. It is
// called without c.mu held; the state is Reporting throughout.
func (c *Controller) finishReport(ctx context.Context, run *activeRun, st logmonitor.State) error {
	name := run.inv.RunName

	reportPath, samples, genErr := c.generate(ctx, run, st)
	if genErr == nil && c.opts.Notifier != nil {
		c.opts.Notifier.ReportReady(name, reportPath)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	run.stopPoll()
	if err := c.opts.Monitor.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to clear pipeline log")
	}
	c.run = nil
	c.folder = nil
	_ = c.transition(StateIdle)

	duration := c.now().Sub(run.started)
	if genErr != nil {
		c.logger.Error().Err(genErr).Str("run", name).Msg("Report generation failed")
		c.bus.PublishError(name, "report", genErr)
		c.bus.PublishMessage(events.ErrorLevel, "Report generation failed", genErr.Error())
		if c.opts.Notifier != nil {
			c.opts.Notifier.RunFailed(name, genErr.Error())
		}
		c.record(ctx, run, history.StateNoReport, "", genErr.Error())
		c.bus.PublishComplete(run.inv.RunID, name, "", false, duration)
		return genErr
	}

	c.logger.Info().
		Str("run", name).
		Str("report", reportPath).
		Dur("duration", duration).
		Msg("Run complete")
	c.bus.PublishMessage(events.InfoLevel, "Report ready", reportPath)
	c.record(ctx, run, history.StateReported, reportPath, "")
	c.bus.PublishComplete(run.inv.RunID, name, reportPath, true, duration)
	c.startDelivery(ctx, name, reportPath, samples)
	return nil
}

func (c *Controller) record(ctx context.Context, run *activeRun, state, reportPath, errMsg string) {
	if c.opts.History == nil || run.historyID == "" {
		return
	}
	if err := c.opts.History.Finish(context.WithoutCancel(ctx), run.historyID, state, reportPath, errMsg); err != nil {
		c.logger.Warn().Err(err).Str("run", run.inv.RunName).Msg("Failed to update run history")
	}
}

// Reset returns to Idle and forgets the selected folder.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return ErrRunInProgress
	}
	c.folder = nil
	return c.transition(StateIdle)
}

// Close stops the internal poll ticker and waits for report deliveries
// still in flight. A running container is left alone.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.run != nil {
		c.run.stopPoll()
	}
	c.mu.Unlock()
	c.deliveries.Wait()
}
