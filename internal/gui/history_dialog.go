package gui

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/olcbioinformatics/sippr-launcher/internal/history"
)

const historyLimit = 50

// showHistoryDialog lists the most recent runs. store may be nil when the
// history database could not be opened.
func showHistoryDialog(window fyne.Window, store *history.Store) {
	if store == nil {
		dialog.ShowInformation("Run History", "Run history is not available.", window)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	records, err := store.List(ctx, historyLimit)
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to read run history: %w", err), window)
		return
	}
	if len(records) == 0 {
		dialog.ShowInformation("Run History", "No runs have been launched yet.", window)
		return
	}

	list := widget.NewList(
		func() int { return len(records) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(historyLine(records[id]))
		},
	)

	d := dialog.NewCustom("Run History", "Close", list, window)
	d.Resize(fyne.NewSize(820, 420))
	d.Show()
}

// historyLine renders one record as a list row.
func historyLine(r history.Record) string {
	line := fmt.Sprintf("%s  %-13s  %s", r.Started.Local().Format("2006-01-02 15:04"), r.State, r.RunName)
	switch {
	case r.ReportPath != "":
		line += "  " + filepath.Base(r.ReportPath)
	case r.Error != "":
		line += "  " + truncate(r.Error, 80)
	}
	if d := r.Duration(); d > 0 {
		line += fmt.Sprintf("  (%s)", d.Round(time.Second))
	}
	return line
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
