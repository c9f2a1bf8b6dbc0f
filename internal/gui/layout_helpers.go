package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// containerWithStatus places body above a separator and the status bar.
func containerWithStatus(body fyne.CanvasObject, status *StatusBar) fyne.CanvasObject {
	bottom := container.NewVBox(widget.NewSeparator(), status)
	return container.NewBorder(nil, bottom, nil, nil, container.NewPadded(body))
}
