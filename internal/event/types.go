// Package event defines event types for decoupling components in Deskmate.
// These events carry everything the presentation layer needs to observe the
// backend bridge, the capture service, and the proactive scheduler without
// direct dependencies on those components.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "backend.ready", "capture.status")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers published by the core components.
const (
	TypeBackendReady      = "backend.ready"
	TypeBackendExited     = "backend.exited"
	TypeBackendLog        = "backend.log"
	TypeBackendParseError = "backend.parse_error"
	TypeCaptureStatus     = "capture.status"
	TypeProactiveStatus   = "proactive.status"
	TypeProactiveMessage  = "proactive.message"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Backend bridge events
// -----------------------------------------------------------------------------

// BackendReadyEvent is emitted each time a backend process generation
// finishes its own initialization and reports readiness. It is re-emitted
// after every successful restart.
type BackendReadyEvent struct {
	baseEvent
	Generation int // Process generation, starting at 1
}

// NewBackendReadyEvent creates a BackendReadyEvent.
func NewBackendReadyEvent(generation int) BackendReadyEvent {
	return BackendReadyEvent{
		baseEvent:  newBaseEvent(TypeBackendReady),
		Generation: generation,
	}
}

// BackendExitedEvent is emitted when the backend process exits, expectedly
// or not. Code is -1 when no exit code could be determined.
type BackendExitedEvent struct {
	baseEvent
	Generation int
	Code       int
	Err        string // Empty for a clean exit
}

// NewBackendExitedEvent creates a BackendExitedEvent.
func NewBackendExitedEvent(generation, code int, errText string) BackendExitedEvent {
	return BackendExitedEvent{
		baseEvent:  newBaseEvent(TypeBackendExited),
		Generation: generation,
		Code:       code,
		Err:        errText,
	}
}

// BackendLogEvent carries one line of diagnostic text from the backend's
// stderr stream, forwarded verbatim.
type BackendLogEvent struct {
	baseEvent
	Line string
}

// NewBackendLogEvent creates a BackendLogEvent.
func NewBackendLogEvent(line string) BackendLogEvent {
	return BackendLogEvent{
		baseEvent: newBaseEvent(TypeBackendLog),
		Line:      line,
	}
}

// BackendParseErrorEvent is emitted when a line on the backend's stdout
// could not be parsed as a framed message. The bridge ignores such lines
// beyond reporting them.
type BackendParseErrorEvent struct {
	baseEvent
	Line string
	Err  string
}

// NewBackendParseErrorEvent creates a BackendParseErrorEvent.
func NewBackendParseErrorEvent(line, errText string) BackendParseErrorEvent {
	return BackendParseErrorEvent{
		baseEvent: newBaseEvent(TypeBackendParseError),
		Line:      line,
		Err:       errText,
	}
}

// -----------------------------------------------------------------------------
// Capture service events
// -----------------------------------------------------------------------------

// CaptureStatusEvent reports the capture service state after every capture
// attempt and every configuration change.
type CaptureStatusEvent struct {
	baseEvent
	Enabled         bool
	IntervalSeconds int
	HasCapture      bool
	LatestPath      string
	LastCaptureAt   time.Time // Zero when no capture has succeeded yet
	LastError       string    // Empty when the last attempt succeeded
}

// NewCaptureStatusEvent creates a CaptureStatusEvent.
func NewCaptureStatusEvent(enabled bool, intervalSeconds int, latestPath string, lastCaptureAt time.Time, lastError string) CaptureStatusEvent {
	return CaptureStatusEvent{
		baseEvent:       newBaseEvent(TypeCaptureStatus),
		Enabled:         enabled,
		IntervalSeconds: intervalSeconds,
		HasCapture:      latestPath != "",
		LatestPath:      latestPath,
		LastCaptureAt:   lastCaptureAt,
		LastError:       lastError,
	}
}

// -----------------------------------------------------------------------------
// Proactive scheduler events
// -----------------------------------------------------------------------------

// QuietHours is a configured hour-of-day range during which nudges are
// suppressed. The range may wrap around midnight (Start 22, End 8).
type QuietHours struct {
	Start int
	End   int
}

// ProactiveStatusEvent reports the scheduler's tunables and counters after
// every configuration change and every successful nudge.
type ProactiveStatusEvent struct {
	baseEvent
	Enabled         bool
	SentToday       int
	MaxPerDay       int
	MinIdleMinutes  int
	CooldownMinutes int
	RandomChance    float64
	Quiet           QuietHours
	LastProactiveAt time.Time // Zero when no nudge has been sent yet
}

// NewProactiveStatusEvent creates a ProactiveStatusEvent.
func NewProactiveStatusEvent(enabled bool, sentToday, maxPerDay, minIdleMinutes, cooldownMinutes int, randomChance float64, quiet QuietHours, lastProactiveAt time.Time) ProactiveStatusEvent {
	return ProactiveStatusEvent{
		baseEvent:       newBaseEvent(TypeProactiveStatus),
		Enabled:         enabled,
		SentToday:       sentToday,
		MaxPerDay:       maxPerDay,
		MinIdleMinutes:  minIdleMinutes,
		CooldownMinutes: cooldownMinutes,
		RandomChance:    randomChance,
		Quiet:           quiet,
		LastProactiveAt: lastProactiveAt,
	}
}

// ProactiveMessageEvent carries one autonomous outbound message for the
// presentation layer to show the user.
type ProactiveMessageEvent struct {
	baseEvent
	Text string
}

// NewProactiveMessageEvent creates a ProactiveMessageEvent.
func NewProactiveMessageEvent(text string) ProactiveMessageEvent {
	return ProactiveMessageEvent{
		baseEvent: newBaseEvent(TypeProactiveMessage),
		Text:      text,
	}
}
