// Package workflow drives a run from folder selection to the finished report.
package workflow

import (
	"errors"
	"fmt"
)

// State is the controller's position in the run lifecycle.
type State int

const (
	StateIdle           State = iota // Nothing selected
	StateFolderSelected              // Folder chosen, readiness being evaluated
	StateReady                       // Folder passed the readiness gate
	StateInvalid                     // Folder failed the gate; reselect to leave
	StateRunning                     // Pipeline container running
	StateReporting                   // Building the PDF report
	StateFailed                      // Pipeline exited badly or never signalled completion
)

// Workflow errors
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRunInProgress     = errors.New("a run is already in progress")
	ErrPipelineFailed    = errors.New("pipeline failed")
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFolderSelected:
		return "FolderSelected"
	case StateReady:
		return "Ready"
	case StateInvalid:
		return "Invalid"
	case StateRunning:
		return "Running"
	case StateReporting:
		return "Reporting"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Busy reports whether a run occupies the controller.
func (s State) Busy() bool {
	return s == StateRunning || s == StateReporting
}

// CanTransitionTo checks if moving from s to next is allowed.
func (s State) CanTransitionTo(next State) bool {
	switch next {
	case StateIdle:
		return s != StateRunning && s != StateFolderSelected

	case StateFolderSelected:
		return s == StateIdle || s == StateReady || s == StateInvalid || s == StateFailed

	case StateReady, StateInvalid:
		return s == StateFolderSelected

	case StateRunning:
		return s == StateReady

	case StateReporting, StateFailed:
		return s == StateRunning

	default:
		return false
	}
}

// transitionError describes a refused transition.
func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Controls is the enabled state of the two user actions.
type Controls struct {
	SelectFolder bool
	Launch       bool
}

// ControlsFor returns the controls allowed in s. Launch is only enabled
// in Ready; nothing is enabled while a run is in flight.
func ControlsFor(s State) Controls {
	switch s {
	case StateReady:
		return Controls{SelectFolder: true, Launch: true}
	case StateRunning, StateReporting, StateFolderSelected:
		return Controls{}
	default:
		return Controls{SelectFolder: true}
	}
}
