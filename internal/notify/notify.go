// Package notify sends desktop notifications when a run finishes.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// SendFunc delivers one notification.
type SendFunc func(title, message string) error

// Notifier handles desktop notifications.
type Notifier struct {
	logger *logging.Logger
	cfg    Config
	send   SendFunc
	alert  SendFunc
	mu     sync.RWMutex
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowReportReady notifies when the PDF report has been written.
	ShowReportReady bool

	// ShowRunFailed notifies when the pipeline or report generation failed.
	ShowRunFailed bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		ShowReportReady: true,
		ShowRunFailed:   true,
	}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Notifier{
		logger: logger,
		cfg:    *cfg,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
	}
}

// WithSender replaces the delivery function for both regular notifications
// and alerts. Used by tests and the CLI, which prints instead.
func (n *Notifier) WithSender(send SendFunc) *Notifier {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.send = send
	n.alert = send
	return n
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg.Enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.Enabled
}

// ReportReady announces a finished run and its report.
func (n *Notifier) ReportReady(runName, reportPath string) {
	n.mu.RLock()
	show := n.cfg.Enabled && n.cfg.ShowReportReady
	send := n.send
	n.mu.RUnlock()
	if !show {
		return
	}

	title := "GeneSippr Report Ready"
	message := fmt.Sprintf("Run \"%s\" finished.\n%s", truncate(runName, 40), shortenPath(reportPath))

	if err := send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("run", runName).Msg("Failed to send report ready notification")
	}
}

// RunFailed alerts the user that a run did not produce a report.
func (n *Notifier) RunFailed(runName, reason string) {
	n.mu.RLock()
	show := n.cfg.Enabled && n.cfg.ShowRunFailed
	alert, send := n.alert, n.send
	n.mu.RUnlock()
	if !show {
		return
	}

	title := constants.AppName + " Alert"
	message := fmt.Sprintf("Run \"%s\" failed:\n%s", truncate(runName, 40), truncate(reason, 100))

	// Alert is more prominent on some platforms; fall back to a plain notification
	if err := alert(title, message); err != nil {
		if err := send(title, message); err != nil {
			n.logger.Error().Err(err).Str("run", runName).Msg("Failed to send run failed notification")
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	short := filepath.Join("...", filepath.Base(filepath.Dir(path)), filepath.Base(path))
	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
