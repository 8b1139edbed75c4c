package protocol

import (
	"fmt"
	"strconv"
)

// Channel is the addressing key that multiplexes unrelated conversations
// over a single shared mailbox.
type Channel int64

// Reserved channels. They are negative so they can never collide with a
// session channel, which the transport allocates from the positive range.
const (
	// ChannelServer carries connection requests and stop requests to the dispatcher.
	ChannelServer Channel = -1

	// ChannelAccept is reserved for protocol extensions and unused by the
	// minimal handshake.
	ChannelAccept Channel = -2
)

// FirstSessionChannel is the lowest channel a transport may hand out to a session.
const FirstSessionChannel Channel = 1

// IsReserved reports whether c is one of the fixed protocol channels.
func (c Channel) IsReserved() bool {
	return c == ChannelServer || c == ChannelAccept
}

// IsSession reports whether c lies in the dynamic per-session range.
func (c Channel) IsSession() bool {
	return c >= FirstSessionChannel
}

// String returns a readable channel name for logs.
func (c Channel) String() string {
	switch c {
	case ChannelServer:
		return "server"
	case ChannelAccept:
		return "accept"
	default:
		return strconv.FormatInt(int64(c), 10)
	}
}

// ParseChannel is the inverse of the numeric form of String.
func ParseChannel(s string) (Channel, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q: %w", s, err)
	}
	return Channel(n), nil
}
