package mailbox

import (
	"time"

	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithBus attaches an event bus to the Mailbox. When set, a MailboxSentEvent
// is published after every successful Send and a MailboxDrainedEvent after
// every Drain that removed something.
func WithBus(bus *event.Bus) Option {
	return func(m *Mailbox) {
		m.bus = bus
	}
}

// WithLogger sets the logger used for envelope tracing at DEBUG level.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Mailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

const (
	// defaultPollInterval bounds how long a blocked receiver can miss a
	// wake-up when change notifications are unavailable.
	defaultPollInterval = 200 * time.Millisecond

	// defaultKeyPrefix namespaces redis keys.
	defaultKeyPrefix = "mqfetch"
)

// transportOptions holds settings shared by the byte-oriented backends.
type transportOptions struct {
	codec        protocol.Codec
	pollInterval time.Duration
	keyPrefix    string
}

// TransportOption configures a FileTransport or RedisTransport.
type TransportOption func(*transportOptions)

// WithCodec selects the envelope encoding. Every participant of a mailbox
// must use the same codec.
func WithCodec(c protocol.Codec) TransportOption {
	return func(o *transportOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithPollInterval sets the fallback rescan interval. Zero or negative
// values are ignored.
func WithPollInterval(d time.Duration) TransportOption {
	return func(o *transportOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithKeyPrefix sets the redis key namespace. Empty values are ignored.
func WithKeyPrefix(prefix string) TransportOption {
	return func(o *transportOptions) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

func applyTransportOptions(opts []TransportOption) transportOptions {
	o := transportOptions{
		codec:        protocol.JSON(),
		pollInterval: defaultPollInterval,
		keyPrefix:    defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
