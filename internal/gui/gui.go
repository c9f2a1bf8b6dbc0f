// Package gui is the fyne front end of the launcher.
package gui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
	"github.com/rs/zerolog"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/core"
	"github.com/olcbioinformatics/sippr-launcher/internal/events"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
	"github.com/olcbioinformatics/sippr-launcher/internal/workflow"
)

// guiLogger is the package-level logger for GUI mode
var guiLogger = logging.NewNopLogger()

// ErrNoDisplay is returned by Run on a Linux host without X11 or Wayland.
var ErrNoDisplay = errors.New("GUI mode requires a display; DISPLAY and WAYLAND_DISPLAY are not set")

// HasDisplay reports whether a window can be opened.
func HasDisplay() bool {
	if runtime.GOOS != "linux" {
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// Run loads the configuration and shows the main window until it is closed.
func Run(configFile string) error {
	if !HasDisplay() {
		return fmt.Errorf("%w.\nUse 'sippr-launcher run <folder>' for CLI mode", ErrNoDisplay)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	// GUI mode always writes a log file
	guiLogger = logging.NewLogger("gui")
	if err := config.EnsureLogDirectory(); err != nil {
		guiLogger.Warn().Err(err).Msg("Failed to create log directory")
	}
	guiLogger.EnableFile(logging.FileOptions{Path: cfg.LogFilePath()})
	defer guiLogger.Close()

	// The console stays quiet in GUI mode unless SIPPR_DEBUG is set
	if os.Getenv(constants.EnvDebug) != "" {
		logging.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.Logging.Level))
	}

	if err := cfg.Validate(); err != nil {
		guiLogger.Warn().Err(err).Msg("Configuration is incomplete")
	}

	ctx := context.Background()
	engine, err := core.NewEngine(ctx, cfg, guiLogger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	myApp := app.NewWithID(constants.AppID)
	myApp.Settings().SetTheme(&sipprTheme{})

	mainWindow := myApp.NewWindow(constants.AppName)
	mainWindow.SetMaster()

	ui := NewUI(engine, mainWindow)
	ui.Start()

	mainWindow.SetContent(ui.Build())
	mainWindow.Resize(fyne.NewSize(960, 640))
	mainWindow.CenterOnScreen()
	mainWindow.SetCloseIntercept(ui.confirmClose)
	mainWindow.SetOnClosed(ui.Stop)

	mainWindow.ShowAndRun()
	return nil
}

// UI connects the engine's event bus to the window.
type UI struct {
	engine *core.Engine
	window fyne.Window
	status *StatusBar
	panel  *RunPanel
	ctx    context.Context
	cancel context.CancelFunc
}

// NewUI creates a new UI instance
func NewUI(engine *core.Engine, window fyne.Window) *UI {
	ctx, cancel := context.WithCancel(context.Background())
	status := NewStatusBar()
	return &UI{
		engine: engine,
		window: window,
		status: status,
		panel:  NewRunPanel(engine, window, status),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Build creates the UI layout
func (ui *UI) Build() fyne.CanvasObject {
	return containerWithStatus(ui.panel.Build(), ui.status)
}

// Start attaches the log view to the monitor and begins event monitoring.
// Subscriptions are made before returning so no event published after Start
// is missed.
func (ui *UI) Start() {
	ui.engine.Monitor().SetDisplay(ui.panel.logView)

	bus := ui.engine.Events()
	go ui.monitorControls(bus.Subscribe(events.EventControls))
	go ui.monitorStateChanges(bus.Subscribe(events.EventStateChange))
	go ui.monitorMessages(bus.Subscribe(events.EventMessage))
	go ui.monitorErrors(bus.Subscribe(events.EventError))
	go ui.monitorCompletion(bus.Subscribe(events.EventComplete))
}

// Stop detaches the view and releases the engine.
func (ui *UI) Stop() {
	ui.panel.logView.Close()
	ui.engine.Monitor().SetDisplay(nil)
	ui.cancel()
	ui.engine.Stop()
}

// confirmClose asks before closing while the pipeline is running.
func (ui *UI) confirmClose() {
	if !ui.engine.Controller().State().Busy() {
		ui.window.Close()
		return
	}
	dialog.ShowConfirm("Run in progress",
		"GeneSippr is still running. If you quit now the container keeps running\n"+
			"but no report will be generated. Quit anyway?",
		func(quit bool) {
			if quit {
				ui.window.Close()
			}
		}, ui.window)
}

// listen runs handle for every event on ch until ch closes or the UI stops.
func (ui *UI) listen(ch <-chan events.Event, handle func(events.Event)) {
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			handle(event)
		case <-ui.ctx.Done():
			return
		}
	}
}

func (ui *UI) monitorControls(ch <-chan events.Event) {
	ui.listen(ch, func(e events.Event) {
		if c, ok := e.(*events.ControlsEvent); ok {
			ui.panel.setControls(workflow.Controls{SelectFolder: c.SelectFolder, Launch: c.Launch})
		}
	})
}

func (ui *UI) monitorStateChanges(ch <-chan events.Event) {
	ui.listen(ch, func(e events.Event) {
		sc, ok := e.(*events.StateChangeEvent)
		if !ok {
			return
		}
		ui.status.SetState(sc.NewState)
		if msg, level := statusFor(sc.NewState, sc.RunName); msg != "" {
			ui.status.SetStatus(msg, level)
		}
	})
}

// monitorMessages shows warnings and errors as dialogs. Info messages only
// reach the status bar.
func (ui *UI) monitorMessages(ch <-chan events.Event) {
	ui.listen(ch, func(e events.Event) {
		m, ok := e.(*events.MessageEvent)
		if !ok {
			return
		}
		if m.Level == events.InfoLevel {
			ui.status.SetInfo(m.Title + ": " + m.Text)
			return
		}
		guiLogger.Debug().Str("title", m.Title).Str("level", m.Level.String()).Msg("Showing message")
		fyne.Do(func() {
			dialog.ShowInformation(m.Title, m.Text, ui.window)
		})
	})
}

// monitorErrors surfaces failed post-report steps, which do not fail the run.
func (ui *UI) monitorErrors(ch <-chan events.Event) {
	ui.listen(ch, func(e events.Event) {
		ev, ok := e.(*events.ErrorEvent)
		if !ok || ev.Error == nil {
			return
		}
		switch ev.Stage {
		case "archive":
			ui.status.SetWarning("Report archive upload failed: " + ev.Error.Error())
		case "mail":
			ui.status.SetWarning("Report e-mail failed: " + ev.Error.Error())
		}
	})
}

func (ui *UI) monitorCompletion(ch <-chan events.Event) {
	ui.listen(ch, func(e events.Event) {
		c, ok := e.(*events.CompleteEvent)
		if !ok {
			return
		}
		if c.Success {
			ui.status.SetSuccess("Report ready: " + filepath.Base(c.ReportPath))
			ui.panel.reportReady(c.ReportPath)
			return
		}
		ui.status.SetError(fmt.Sprintf("Run %s finished without a report", c.RunName))
		ui.panel.reportReady("")
	})
}

// statusFor maps a workflow state to the status bar line. Idle returns an
// empty message so the completion status stays visible.
func statusFor(state, runName string) (string, StatusLevel) {
	switch state {
	case workflow.StateFolderSelected.String():
		return "Checking run folder...", StatusProgress
	case workflow.StateReady.String():
		return runName + " is ready to launch", StatusSuccess
	case workflow.StateInvalid.String():
		return runName + " cannot be launched", StatusWarning
	case workflow.StateRunning.String():
		return "Running GeneSippr on " + runName, StatusProgress
	case workflow.StateReporting.String():
		return "Building report for " + runName, StatusProgress
	case workflow.StateFailed.String():
		return runName + " failed", StatusError
	default:
		return "", StatusInfo
	}
}
