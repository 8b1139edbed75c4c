// Package protocol defines the envelopes exchanged through the shared mailbox
// and the channel numbering convention.
//
// Two channels are reserved and negative: [ChannelServer], on which the
// dispatcher accepts [KindConnect] and [KindStopServer], and [ChannelAccept],
// which is kept for extensions. Every other conversation happens on a
// positive session channel handed out by the transport. A session channel
// carries, in order:
//
//	SessionIdentity, DataChunk..., DataChunk{Length: 0}, StopClient
//
// or, when the session is rejected before the handshake:
//
//	PrintNotice, StopClient
//
// The zero-length chunk only says that no more data follows. StopClient is
// the single signal that lets a client leave its receive loop.
//
// The package does no I/O. Transports that store bytes pick a [Codec]
// ([JSON] or [CBOR]) to serialize envelopes.
package protocol
