package gui

import (
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/olcbioinformatics/sippr-launcher/internal/logmonitor"
)

// LogView shows the pipeline log. It implements logmonitor.Display, so the
// monitor pushes the full text on every poll from its own goroutine.
type LogView struct {
	label  *widget.Label
	scroll *container.Scroll

	mu     sync.Mutex
	text   string
	closed bool
}

// NewLogView creates an empty, monospaced log view.
func NewLogView() *LogView {
	v := &LogView{}
	v.label = widget.NewLabel("")
	v.label.TextStyle = fyne.TextStyle{Monospace: true}
	v.label.Wrapping = fyne.TextWrapOff
	v.scroll = container.NewScroll(v.label)
	v.scroll.SetMinSize(fyne.NewSize(760, 360))
	return v
}

// SetText replaces the shown text and scrolls to the end. After Close it
// returns logmonitor.ErrDisplayClosed.
func (v *LogView) SetText(text string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return logmonitor.ErrDisplayClosed
	}
	changed := v.text != text
	v.text = text
	v.mu.Unlock()

	if !changed {
		return nil
	}
	fyne.Do(func() {
		v.label.SetText(text)
		v.scroll.ScrollToBottom()
	})
	return nil
}

// Text returns the text last passed to SetText.
func (v *LogView) Text() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

// Close detaches the view; later updates are refused.
func (v *LogView) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

// Object returns the canvas object to place in a layout.
func (v *LogView) Object() fyne.CanvasObject {
	return v.scroll
}

var _ logmonitor.Display = (*LogView)(nil)
