package mailbox

import (
	"context"
	"sync/atomic"

	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// Mailbox wraps a Transport with observability: every envelope is traced at
// DEBUG level, counted, and optionally published on an event bus. Mailbox
// itself implements Transport, so callers never need the bare backend.
type Mailbox struct {
	transport Transport
	bus       *event.Bus
	logger    *logging.Logger

	sent     atomic.Int64
	received atomic.Int64
	drained  atomic.Int64
}

// Stats is a snapshot of the Mailbox counters.
type Stats struct {
	Sent     int64 `yaml:"sent"`
	Received int64 `yaml:"received"`
	Drained  int64 `yaml:"drained"`
}

// New creates a Mailbox over t.
func New(t Transport, opts ...Option) *Mailbox {
	m := &Mailbox{
		transport: t,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("mailbox")
	return m
}

// Transport returns the wrapped backend.
func (m *Mailbox) Transport() Transport {
	return m.transport
}

// Send delivers env and publishes a MailboxSentEvent on success.
func (m *Mailbox) Send(ctx context.Context, env protocol.Envelope) error {
	if err := m.transport.Send(ctx, env); err != nil {
		return err
	}
	m.sent.Add(1)
	m.logger.Debug("envelope sent", "channel", int64(env.Channel), "kind", env.Kind.String())
	if m.bus != nil {
		m.bus.Publish(NewMailboxSentEvent(env))
	}
	return nil
}

// Receive takes the next envelope on ch.
func (m *Mailbox) Receive(ctx context.Context, ch protocol.Channel) (protocol.Envelope, error) {
	env, err := m.transport.Receive(ctx, ch)
	if err != nil {
		return env, err
	}
	m.received.Add(1)
	m.logger.Debug("envelope received", "channel", int64(ch), "kind", env.Kind.String())
	return env, nil
}

// Drain discards pending envelopes on ch. A MailboxDrainedEvent is
// published only when something was actually removed.
func (m *Mailbox) Drain(ctx context.Context, ch protocol.Channel) (int, error) {
	n, err := m.transport.Drain(ctx, ch)
	if err != nil {
		return n, err
	}
	if n > 0 {
		m.drained.Add(int64(n))
		m.logger.Debug("channel drained", "channel", int64(ch), "discarded", n)
		if m.bus != nil {
			m.bus.Publish(NewMailboxDrainedEvent(ch, n))
		}
	}
	return n, nil
}

// Pending reports waiting envelopes on ch.
func (m *Mailbox) Pending(ctx context.Context, ch protocol.Channel) (int, error) {
	return m.transport.Pending(ctx, ch)
}

// Allocate reserves a session channel.
func (m *Mailbox) Allocate(ctx context.Context) (protocol.Channel, error) {
	ch, err := m.transport.Allocate(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Debug("channel allocated", "channel", int64(ch))
	return ch, nil
}

// Destroy tears down the underlying transport.
func (m *Mailbox) Destroy(ctx context.Context) error {
	m.logger.Debug("destroying mailbox")
	return m.transport.Destroy(ctx)
}

// Stats returns the current counters.
func (m *Mailbox) Stats() Stats {
	return Stats{
		Sent:     m.sent.Load(),
		Received: m.received.Load(),
		Drained:  m.drained.Load(),
	}
}
