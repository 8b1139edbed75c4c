package mailbox

import (
	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// NewMailboxSentEvent creates an event.MailboxSentEvent from an Envelope.
func NewMailboxSentEvent(env protocol.Envelope) event.MailboxSentEvent {
	return event.NewMailboxSentEvent(int64(env.Channel), env.Kind.String())
}

// NewMailboxDrainedEvent creates an event.MailboxDrainedEvent for ch.
func NewMailboxDrainedEvent(ch protocol.Channel, discarded int) event.MailboxDrainedEvent {
	return event.NewMailboxDrainedEvent(int64(ch), discarded)
}
