// Package events is the hook mechanism between the workflow controller and
// whatever view is attached to it (fyne window, CLI spinner, tests).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventControls    EventType = "controls"
	EventLog         EventType = "log"
	EventMessage     EventType = "message"
	EventError       EventType = "error"
	EventComplete    EventType = "complete"
)

// MessageLevel defines the severity of a user-facing message.
type MessageLevel int

const (
	InfoLevel MessageLevel = iota
	WarnLevel
	ErrorLevel
)

func (l MessageLevel) String() string {
	switch l {
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// StateChangeEvent is published on every workflow transition.
type StateChangeEvent struct {
	BaseEvent
	RunID    string
	RunName  string
	OldState string
	NewState string
}

// ControlsEvent carries the enabled state of the user actions.
type ControlsEvent struct {
	BaseEvent
	SelectFolder bool
	Launch       bool
}

// LogEvent carries the full pipeline log text after a poll tick.
type LogEvent struct {
	BaseEvent
	RunName string
	Text    string
	Lines   int
}

// MessageEvent is a modal message for the user (e.g. an invalid run folder).
type MessageEvent struct {
	BaseEvent
	Level MessageLevel
	Title string
	Text  string
}

// ErrorEvent represents an error condition that did not end the session.
type ErrorEvent struct {
	BaseEvent
	RunName string
	Stage   string
	Error   error
}

// CompleteEvent is published once a run reached Idle again.
type CompleteEvent struct {
	BaseEvent
	RunID      string
	RunName    string
	ReportPath string
	Success    bool
	Duration   time.Duration
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events for a
// full subscriber are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishStateChange is a convenience method for publishing transitions
func (eb *EventBus) PublishStateChange(runID, runName, oldState, newState string) {
	eb.Publish(&StateChangeEvent{
		BaseEvent: BaseEvent{EventType: EventStateChange, Time: time.Now()},
		RunID:     runID,
		RunName:   runName,
		OldState:  oldState,
		NewState:  newState,
	})
}

// PublishControls is a convenience method for publishing control state
func (eb *EventBus) PublishControls(selectFolder, launch bool) {
	eb.Publish(&ControlsEvent{
		BaseEvent:    BaseEvent{EventType: EventControls, Time: time.Now()},
		SelectFolder: selectFolder,
		Launch:       launch,
	})
}

// PublishLog is a convenience method for publishing log text
func (eb *EventBus) PublishLog(runName, text string, lines int) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		RunName:   runName,
		Text:      text,
		Lines:     lines,
	})
}

// PublishMessage is a convenience method for publishing a modal message
func (eb *EventBus) PublishMessage(level MessageLevel, title, text string) {
	eb.Publish(&MessageEvent{
		BaseEvent: BaseEvent{EventType: EventMessage, Time: time.Now()},
		Level:     level,
		Title:     title,
		Text:      text,
	})
}

// PublishError is a convenience method for publishing a recoverable error
func (eb *EventBus) PublishError(runName, stage string, err error) {
	eb.Publish(&ErrorEvent{
		BaseEvent: BaseEvent{EventType: EventError, Time: time.Now()},
		RunName:   runName,
		Stage:     stage,
		Error:     err,
	})
}

// PublishComplete is a convenience method for publishing the end of a run
func (eb *EventBus) PublishComplete(runID, runName, reportPath string, success bool, duration time.Duration) {
	eb.Publish(&CompleteEvent{
		BaseEvent:  BaseEvent{EventType: EventComplete, Time: time.Now()},
		RunID:      runID,
		RunName:    runName,
		ReportPath: reportPath,
		Success:    success,
		Duration:   duration,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
