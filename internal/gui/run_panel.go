package gui

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/olcbioinformatics/sippr-launcher/internal/core"
	"github.com/olcbioinformatics/sippr-launcher/internal/runfolder"
	"github.com/olcbioinformatics/sippr-launcher/internal/workflow"
)

// RunPanel is the main window body: folder selection, launch, and the log.
type RunPanel struct {
	engine *core.Engine
	window fyne.Window
	status *StatusBar

	folderLabel  *widget.Label
	detailLabel  *widget.Label
	selectButton *widget.Button
	launchButton *widget.Button
	reportButton *widget.Button
	logView      *LogView

	mu         sync.Mutex
	lastReport string
}

// NewRunPanel creates the panel. Controls start in the controller's state.
func NewRunPanel(engine *core.Engine, window fyne.Window, status *StatusBar) *RunPanel {
	p := &RunPanel{
		engine:  engine,
		window:  window,
		status:  status,
		logView: NewLogView(),
	}

	p.folderLabel = widget.NewLabel("No run folder selected")
	p.folderLabel.TextStyle = fyne.TextStyle{Bold: true}
	p.folderLabel.Truncation = fyne.TextTruncateEllipsis
	p.detailLabel = widget.NewLabel("")

	p.selectButton = widget.NewButtonWithIcon("Select Run Folder", theme.FolderOpenIcon(), p.showFolderDialog)
	p.launchButton = widget.NewButtonWithIcon("Launch GeneSippr", theme.MediaPlayIcon(), func() {
		go p.launch()
	})
	p.launchButton.Importance = widget.HighImportance
	p.reportButton = widget.NewButtonWithIcon("Open Report", theme.DocumentIcon(), p.openReport)
	p.reportButton.Disable()

	p.setControls(engine.Controller().Controls())
	return p
}

// Build creates the panel layout.
func (p *RunPanel) Build() fyne.CanvasObject {
	historyButton := widget.NewButtonWithIcon("History", theme.HistoryIcon(), func() {
		showHistoryDialog(p.window, p.engine.History())
	})

	folderBox := container.NewBorder(nil, nil, widget.NewLabel("Run:"), nil, p.folderLabel)
	buttons := container.NewHBox(p.selectButton, p.launchButton, p.reportButton, historyButton)
	top := container.NewVBox(
		widget.NewLabelWithStyle("GeneSippr Launcher", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		folderBox,
		p.detailLabel,
		buttons,
		widget.NewSeparator(),
		widget.NewLabel("Pipeline log"),
	)

	return container.NewBorder(top, nil, nil, nil, p.logView.Object())
}

// showFolderDialog opens a folder picker rooted at the MiSeq backup when it
// exists.
func (p *RunPanel) showFolderDialog() {
	d := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			dialog.ShowError(err, p.window)
			return
		}
		if uri == nil {
			return
		}
		go p.selectFolder(uri.Path())
	}, p.window)

	if root := p.engine.Config().Paths.MiseqRoot; root != "" {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			if lister, err := storage.ListerForURI(storage.NewFileURI(root)); err == nil {
				d.SetLocation(lister)
			}
		}
	}
	d.Resize(fyne.NewSize(800, 560))
	d.Show()
}

// selectFolder hands path to the controller. Readiness errors reach the
// user as message events; the panel only shows the summary.
func (p *RunPanel) selectFolder(path string) {
	rf, err := p.engine.Controller().SelectFolder(path)
	if errors.Is(err, workflow.ErrRunInProgress) {
		p.status.SetWarning("A run is in progress")
		return
	}

	name := filepath.Base(path)
	if rf != nil {
		name = rf.Name
	}
	summary := folderSummary(rf, err)
	fyne.Do(func() {
		p.folderLabel.SetText(name)
		p.detailLabel.SetText(summary)
	})
	p.setControls(p.engine.Controller().Controls())
}

// launch starts the pipeline. The context is not tied to the window: a run
// is never cancelled from the UI.
func (p *RunPanel) launch() {
	p.mu.Lock()
	p.lastReport = ""
	p.mu.Unlock()
	fyne.Do(p.reportButton.Disable)

	ctrl := p.engine.Controller()
	if err := ctrl.Launch(context.Background()); err != nil {
		switch {
		case errors.Is(err, workflow.ErrRunInProgress):
			p.status.SetWarning("A run is already in progress")
		case errors.Is(err, workflow.ErrInvalidTransition):
			p.status.SetWarning("Select a ready run folder first")
		default:
			p.status.SetError("Launch failed: " + err.Error())
		}
	}
	p.setControls(ctrl.Controls())
}

// setControls enables the buttons for c.
func (p *RunPanel) setControls(c workflow.Controls) {
	fyne.Do(func() {
		applyControls(p.selectButton, p.launchButton, c)
	})
}

// reportReady remembers path for the Open Report button.
func (p *RunPanel) reportReady(path string) {
	p.mu.Lock()
	p.lastReport = path
	p.mu.Unlock()
	fyne.Do(func() {
		if path == "" {
			p.reportButton.Disable()
		} else {
			p.reportButton.Enable()
		}
	})
}

func (p *RunPanel) openReport() {
	p.mu.Lock()
	path := p.lastReport
	p.mu.Unlock()
	if path == "" {
		return
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	if err := fyne.CurrentApp().OpenURL(u); err != nil {
		dialog.ShowError(fmt.Errorf("cannot open %s: %w", path, err), p.window)
	}
}

func applyControls(selectButton, launchButton *widget.Button, c workflow.Controls) {
	setEnabled(selectButton, c.SelectFolder)
	setEnabled(launchButton, c.Launch)
}

func setEnabled(b *widget.Button, enabled bool) {
	if enabled {
		b.Enable()
	} else {
		b.Disable()
	}
}

// folderSummary is the one-line description under the folder name.
func folderSummary(rf *runfolder.RunFolder, err error) string {
	var notReady *runfolder.NotReadyError
	switch {
	case errors.As(err, &notReady):
		return fmt.Sprintf("Not ready: %d of %d cycles complete", notReady.Cycles, notReady.Required)
	case err != nil:
		return "Not a MiSeq run folder"
	case rf == nil:
		return ""
	}

	s := fmt.Sprintf("%d cycles, forward %s, reverse %s", rf.Cycles, rf.Forward, rf.Reverse)
	if !rf.Forward.Known() {
		s += " (RunInfo.xml missing)"
	} else if !rf.ReverseAvailable() {
		s += " (forward reads only)"
	}
	return s
}
