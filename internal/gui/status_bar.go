package gui

import (
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// StatusLevel selects the status bar icon.
type StatusLevel int

const (
	StatusInfo StatusLevel = iota
	StatusSuccess
	StatusWarning
	StatusError
	// StatusProgress replaces the icon with a spinner.
	StatusProgress
)

// StatusBar is the strip at the bottom of the window: an icon or spinner,
// a message, and the workflow state on the right.
type StatusBar struct {
	widget.BaseWidget

	mu      sync.RWMutex
	level   StatusLevel
	message string
	state   string

	icon       *widget.Icon
	label      *widget.Label
	stateLabel *widget.Label
	spinner    *widget.Activity
}

// NewStatusBar creates a status bar showing "Select a run folder".
func NewStatusBar() *StatusBar {
	sb := &StatusBar{
		level:   StatusInfo,
		message: "Select a run folder",
		state:   "Idle",
	}
	sb.label = widget.NewLabel(sb.message)
	sb.label.TextStyle = fyne.TextStyle{Italic: true}
	sb.stateLabel = widget.NewLabel(sb.state)
	sb.stateLabel.TextStyle = fyne.TextStyle{Bold: true}
	sb.icon = widget.NewIcon(theme.InfoIcon())
	sb.spinner = widget.NewActivity()
	sb.spinner.Hide()
	sb.ExtendBaseWidget(sb)
	return sb
}

// SetStatus updates the message and level.
func (sb *StatusBar) SetStatus(message string, level StatusLevel) {
	sb.mu.Lock()
	sb.level = level
	sb.message = message
	sb.mu.Unlock()

	fyne.Do(func() {
		sb.label.SetText(message)
		sb.spinner.Stop()
		sb.spinner.Hide()
		sb.icon.Show()

		switch level {
		case StatusSuccess:
			sb.icon.SetResource(theme.ConfirmIcon())
		case StatusWarning:
			sb.icon.SetResource(theme.WarningIcon())
		case StatusError:
			sb.icon.SetResource(theme.ErrorIcon())
		case StatusProgress:
			sb.icon.Hide()
			sb.spinner.Show()
			sb.spinner.Start()
		default:
			sb.icon.SetResource(theme.InfoIcon())
		}
	})
}

// SetInfo is a convenience method for info-level status
func (sb *StatusBar) SetInfo(message string) {
	sb.SetStatus(message, StatusInfo)
}

// SetSuccess is a convenience method for success-level status
func (sb *StatusBar) SetSuccess(message string) {
	sb.SetStatus(message, StatusSuccess)
}

// SetWarning is a convenience method for warning-level status
func (sb *StatusBar) SetWarning(message string) {
	sb.SetStatus(message, StatusWarning)
}

// SetError is a convenience method for error-level status
func (sb *StatusBar) SetError(message string) {
	sb.SetStatus(message, StatusError)
}

// SetProgress shows message with a spinner.
func (sb *StatusBar) SetProgress(message string) {
	sb.SetStatus(message, StatusProgress)
}

// SetState shows the workflow state name.
func (sb *StatusBar) SetState(state string) {
	sb.mu.Lock()
	sb.state = state
	sb.mu.Unlock()
	fyne.Do(func() { sb.stateLabel.SetText(state) })
}

// Message returns the current status message.
func (sb *StatusBar) Message() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.message
}

// Level returns the current status level.
func (sb *StatusBar) Level() StatusLevel {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.level
}

// State returns the workflow state last shown.
func (sb *StatusBar) State() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.state
}

// CreateRenderer implements fyne.Widget
func (sb *StatusBar) CreateRenderer() fyne.WidgetRenderer {
	content := container.NewHBox(sb.icon, sb.spinner, sb.label, layout.NewSpacer(), sb.stateLabel)
	return widget.NewSimpleRenderer(content)
}
