package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.accepted", "mailbox.drained")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeSessionAccepted        = "session.accepted"
	TypeSessionEnded           = "session.ended"
	TypeSessionCancelRequested = "session.cancel_requested"
	TypeServerStopped          = "server.stopped"
	TypeRequestDropped         = "server.request_dropped"
	TypeMailboxSent            = "mailbox.sent"
	TypeMailboxDrained         = "mailbox.drained"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session Lifecycle Events
// -----------------------------------------------------------------------------

// SessionAcceptedEvent is emitted when the dispatcher spawns a worker.
type SessionAcceptedEvent struct {
	baseEvent
	SessionID    string
	Channel      int64
	RequesterID  int64
	Priority     int
	ResourcePath string
}

// NewSessionAcceptedEvent creates a SessionAcceptedEvent.
func NewSessionAcceptedEvent(sessionID string, channel, requesterID int64, priority int, path string) SessionAcceptedEvent {
	return SessionAcceptedEvent{
		baseEvent:    newBaseEvent(TypeSessionAccepted),
		SessionID:    sessionID,
		Channel:      channel,
		RequesterID:  requesterID,
		Priority:     priority,
		ResourcePath: path,
	}
}

// SessionEndedEvent is emitted exactly once per session when its worker terminates.
type SessionEndedEvent struct {
	baseEvent
	SessionID string
	Channel   int64
	Outcome   string // completed, rejected, cancelled, failed
	BytesSent int64
	Err       error
}

// NewSessionEndedEvent creates a SessionEndedEvent.
func NewSessionEndedEvent(sessionID string, channel int64, outcome string, bytesSent int64, err error) SessionEndedEvent {
	return SessionEndedEvent{
		baseEvent: newBaseEvent(TypeSessionEnded),
		SessionID: sessionID,
		Channel:   channel,
		Outcome:   outcome,
		BytesSent: bytesSent,
		Err:       err,
	}
}

// SessionCancelRequestedEvent is emitted when an out-of-band cancel arrives.
// Known is false when the session had already ended or never existed.
type SessionCancelRequestedEvent struct {
	baseEvent
	SessionID string
	Known     bool
}

// NewSessionCancelRequestedEvent creates a SessionCancelRequestedEvent.
func NewSessionCancelRequestedEvent(sessionID string, known bool) SessionCancelRequestedEvent {
	return SessionCancelRequestedEvent{
		baseEvent: newBaseEvent(TypeSessionCancelRequested),
		SessionID: sessionID,
		Known:     known,
	}
}

// ServerStoppedEvent is emitted when the dispatcher leaves its accept loop.
type ServerStoppedEvent struct {
	baseEvent
	Reason   string
	Accepted int
}

// NewServerStoppedEvent creates a ServerStoppedEvent.
func NewServerStoppedEvent(reason string, accepted int) ServerStoppedEvent {
	return ServerStoppedEvent{
		baseEvent: newBaseEvent(TypeServerStopped),
		Reason:    reason,
		Accepted:  accepted,
	}
}

// RequestDroppedEvent is emitted when the dispatcher discards a connect
// request it cannot serve at all, so no session is created for it.
type RequestDroppedEvent struct {
	baseEvent
	Channel int64
	Err     error
}

// NewRequestDroppedEvent creates a RequestDroppedEvent.
func NewRequestDroppedEvent(channel int64, err error) RequestDroppedEvent {
	return RequestDroppedEvent{
		baseEvent: newBaseEvent(TypeRequestDropped),
		Channel:   channel,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Mailbox Events
// -----------------------------------------------------------------------------

// MailboxSentEvent is emitted after an envelope is delivered to the mailbox.
type MailboxSentEvent struct {
	baseEvent
	Channel int64
	Kind    string
}

// NewMailboxSentEvent creates a MailboxSentEvent.
func NewMailboxSentEvent(channel int64, kind string) MailboxSentEvent {
	return MailboxSentEvent{
		baseEvent: newBaseEvent(TypeMailboxSent),
		Channel:   channel,
		Kind:      kind,
	}
}

// MailboxDrainedEvent is emitted after pending envelopes on a channel are discarded.
type MailboxDrainedEvent struct {
	baseEvent
	Channel   int64
	Discarded int
}

// NewMailboxDrainedEvent creates a MailboxDrainedEvent.
func NewMailboxDrainedEvent(channel int64, discarded int) MailboxDrainedEvent {
	return MailboxDrainedEvent{
		baseEvent: newBaseEvent(TypeMailboxDrained),
		Channel:   channel,
		Discarded: discarded,
	}
}
