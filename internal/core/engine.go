// Package core assembles the launcher from its configuration. Both the GUI
// and the CLI front ends drive the same Engine.
package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/olcbioinformatics/sippr-launcher/internal/archive"
	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/events"
	"github.com/olcbioinformatics/sippr-launcher/internal/history"
	httpx "github.com/olcbioinformatics/sippr-launcher/internal/http"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
	"github.com/olcbioinformatics/sippr-launcher/internal/logmonitor"
	"github.com/olcbioinformatics/sippr-launcher/internal/mail"
	"github.com/olcbioinformatics/sippr-launcher/internal/notify"
	"github.com/olcbioinformatics/sippr-launcher/internal/pipeline"
	"github.com/olcbioinformatics/sippr-launcher/internal/report"
	"github.com/olcbioinformatics/sippr-launcher/internal/report/pdf"
	"github.com/olcbioinformatics/sippr-launcher/internal/validation"
	"github.com/olcbioinformatics/sippr-launcher/internal/workflow"
)

// ErrUnknownFormat is returned by Report for formats other than pdf and yaml.
var ErrUnknownFormat = errors.New("unknown report format")

// Option adjusts how NewEngine wires the engine.
type Option func(*engineOptions)

type engineOptions struct {
	launcher     pipeline.Launcher
	notifySend   notify.SendFunc
	skipHistory  bool
	skipDelivery bool
	manualPoll   bool
}

// WithLauncher replaces the docker launcher.
func WithLauncher(l pipeline.Launcher) Option {
	return func(o *engineOptions) { o.launcher = l }
}

// WithNotifySender replaces beeep as the desktop notification backend.
func WithNotifySender(send notify.SendFunc) Option {
	return func(o *engineOptions) { o.notifySend = send }
}

// WithoutHistory disables the SQLite run history.
func WithoutHistory() Option {
	return func(o *engineOptions) { o.skipHistory = true }
}

// WithoutDelivery disables archive uploads and report mail.
func WithoutDelivery() Option {
	return func(o *engineOptions) { o.skipDelivery = true }
}

// WithManualPolling stops the controller from running its own ticker;
// the caller drives Controller().Poll.
func WithManualPolling() Option {
	return func(o *engineOptions) { o.manualPoll = true }
}

// Engine owns the workflow controller and everything wired into it.
type Engine struct {
	config     *config.Config
	logger     *logging.Logger
	eventBus   *events.EventBus
	builder    *pipeline.Builder
	monitor    *logmonitor.Monitor
	aggregator *report.Aggregator
	renderer   *pdf.Renderer
	notifier   *notify.Notifier
	history    *history.Store
	controller *workflow.Controller

	stopOnce sync.Once
}

// NewEngine builds an engine from cfg. Archive, mail and history failures
// are logged and the engine runs without them; a broken pipeline setup is
// an error.
func NewEngine(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	mounts, err := cfg.Mounts()
	if err != nil {
		return nil, err
	}
	pm := make([]pipeline.Mount, len(mounts))
	for i, m := range mounts {
		pm[i] = pipeline.Mount{Host: m.Host, Container: m.Container}
	}

	e := &Engine{
		config:   cfg,
		logger:   logger.Component("engine"),
		eventBus: events.NewEventBus(constants.EventBusDefaultBuffer),
		builder: pipeline.NewBuilder(pipeline.Options{
			Image:            cfg.Pipeline.Image,
			CondaEnv:         cfg.Pipeline.CondaEnv,
			EntryScript:      cfg.Pipeline.EntryScript,
			Mounts:           pm,
			ReferenceDB:      cfg.Paths.ReferenceDB,
			SequenceDir:      cfg.Paths.SequenceDir,
			OutputDir:        cfg.Paths.OutputDir,
			LogPath:          cfg.LogPath(),
			SampleSheet:      cfg.Paths.SampleSheet,
			ContainerWorkDir: cfg.Pipeline.ContainerWorkDir,
		}),
		monitor: logmonitor.New(logmonitor.Options{
			Path:              cfg.LogPath(),
			SampleSheetMarker: cfg.Pipeline.SampleSheetMarker,
			CompletionMarker:  cfg.Pipeline.CompletionMarker,
			Logger:            logger.Component("logmonitor"),
		}),
		aggregator: report.NewAggregator(logger.Component("report")),
		renderer:   pdf.NewRenderer(),
		notifier: notify.NewNotifier(&notify.Config{
			Enabled:         cfg.Notifications.Enabled,
			ShowReportReady: true,
			ShowRunFailed:   true,
		}, logger.Component("notify")),
	}
	if o.notifySend != nil {
		e.notifier.WithSender(o.notifySend)
	}

	launcher := o.launcher
	if launcher == nil {
		launcher = pipeline.NewDockerLauncher(logger.Component("pipeline"))
	}

	var archiver archive.Uploader
	var mailer workflow.ReportMailer
	if !o.skipDelivery {
		archiver, err = archive.New(ctx, cfg.Archive, logger.Component("archive"))
		if err != nil {
			e.logger.Warn().Err(err).Str("provider", cfg.Archive.Provider).Msg("Report archiving disabled")
			archiver = nil
		}
		if cfg.Mail.Enabled {
			sender, err := mail.NewSender(ctx, cfg, httpx.NewRetryingClient(logger), logger.Component("mail"))
			if err != nil {
				e.logger.Warn().Err(err).Msg("Report mail disabled")
			} else {
				mailer = sender
			}
		}
	}

	var recorder workflow.RunRecorder
	if !o.skipHistory {
		if store, err := openHistory(ctx, cfg); err != nil {
			e.logger.Warn().Err(err).Msg("Run history disabled")
		} else {
			e.history = store
			recorder = store
		}
	}

	poll := cfg.PollInterval()
	if o.manualPoll {
		poll = 0
	}

	controller, err := workflow.New(workflow.Options{
		Builder:      e.builder,
		Launcher:     launcher,
		Monitor:      e.monitor,
		Aggregator:   e.aggregator,
		Renderer:     e.renderer,
		Bus:          e.eventBus,
		Notifier:     e.notifier,
		Archiver:     archiver,
		Mailer:       mailer,
		History:      recorder,
		Logger:       logger,
		OutputDir:    cfg.Paths.OutputDir,
		ReportSuffix: cfg.Report.Suffix,
		Logo:         cfg.Report.Logo,
		Footer:       cfg.Report.Footer,
		ExportYAML:   cfg.Report.ExportYAML,
		MinFreeBytes: cfg.MinFreeBytes(),
		PollInterval: poll,
		GracePolls:   cfg.Pipeline.CompletionGracePolls,
	})
	if err != nil {
		e.closeHistory()
		return nil, fmt.Errorf("failed to create workflow controller: %w", err)
	}
	e.controller = controller
	return e, nil
}

func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(ctx, path)
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config {
	return e.config
}

// Events returns the event bus for subscriptions
func (e *Engine) Events() *events.EventBus {
	return e.eventBus
}

// Controller returns the run lifecycle controller.
func (e *Engine) Controller() *workflow.Controller {
	return e.controller
}

// Monitor returns the pipeline log monitor.
func (e *Engine) Monitor() *logmonitor.Monitor {
	return e.monitor
}

// Builder returns the pipeline command builder.
func (e *Engine) Builder() *pipeline.Builder {
	return e.builder
}

// History returns the run history, or nil when it could not be opened.
func (e *Engine) History() *history.Store {
	return e.history
}

// Notifier returns the desktop notifier.
func (e *Engine) Notifier() *notify.Notifier {
	return e.notifier
}

// ReportOptions selects what Report regenerates.
type ReportOptions struct {
	RunName string

	// SampleSheet defaults to <miseq_root>/<run>/SampleSheet.csv.
	SampleSheet string

	// Format is "pdf" (default) or "yaml".
	Format string
}

// Report builds the report for a run whose pipeline outputs already exist,
// without launching anything. It returns the written path.
func (e *Engine) Report(ctx context.Context, opts ReportOptions) (string, error) {
	if err := validation.RunName(opts.RunName); err != nil {
		return "", err
	}
	reportDir := filepath.Join(e.config.Paths.OutputDir, opts.RunName, constants.ReportsDirName)
	if err := validation.PathInDirectory(reportDir, e.config.Paths.OutputDir); err != nil {
		return "", err
	}

	var renderer report.Renderer
	format := strings.ToLower(opts.Format)
	switch format {
	case "", "pdf":
		format = "pdf"
		renderer = e.renderer
	case "yaml", "yml":
		format = "yaml"
		renderer = report.YAMLRenderer{}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	sheet := opts.SampleSheet
	if sheet == "" {
		sheet = filepath.Join(e.config.Paths.MiseqRoot, opts.RunName, constants.DefaultSampleSheet)
	}

	doc, err := e.aggregator.Build(ctx, report.Request{
		RunName:     opts.RunName,
		ReportDir:   reportDir,
		SampleSheet: sheet,
		Footer:      e.config.Report.Footer,
		Logo:        e.config.Report.Logo,
	})
	if err != nil {
		return "", err
	}

	path := report.OutputPath(e.config.Paths.OutputDir, opts.RunName, e.config.Report.Suffix, format, doc.Issued)
	if err := renderer.Render(doc, path); err != nil {
		return "", err
	}
	e.logger.Info().Str("run", opts.RunName).Str("path", path).Msg("Report written")
	return path, nil
}

// Stop stops log polling and releases the history database. A running
// container is not stopped; cancel the context passed to Launch for that.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.controller.Close()
		e.closeHistory()
		e.eventBus.Close()
	})
}

func (e *Engine) closeHistory() {
	if e.history == nil {
		return
	}
	if err := e.history.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to close run history")
	}
}
