// Package mailbox provides the shared, channel-tagged envelope store that
// the dispatcher, session workers and clients talk through.
//
// A mailbox offers only two primitives: deliver an envelope tagged with a
// channel, and take the next envelope whose tag equals a given channel.
// Everything session-shaped (handshake, streaming, teardown) is built on top
// by the session and client packages.
//
// # Backends
//
//   - [MemoryTransport]: in-process queues, used by tests and embedding
//   - [FileTransport]: one file per envelope under a shared directory,
//     woken by fsnotify, usable by any process on the host
//   - [RedisTransport]: one redis list per channel, usable across hosts
//
// The file layout is:
//
//	{dir}/mailbox/
//	    tmp/              -- staging for writes and claims
//	    ch.-1/            -- SERVER channel (connect, stop)
//	    ch.-2/            -- ACCEPT channel (reserved)
//	    ch.{n}/{seq}.env  -- session channel n, one file per envelope
//
// # Channels
//
// Reserved channels are negative, session channels are positive and are
// handed out by [Transport.Allocate]. The two ranges can never collide.
//
// # Main Types
//
//   - [Transport]: the backend contract
//   - [Mailbox]: a Transport wrapper that traces, counts and publishes
//     mailbox.sent and mailbox.drained events
//
// # Basic Usage
//
//	ft, err := mailbox.CreateFileTransport(dir, mailbox.WithCodec(protocol.JSON()))
//	if err != nil {
//	    return err
//	}
//	mb := mailbox.New(ft, mailbox.WithBus(bus), mailbox.WithLogger(logger))
//
//	env, err := mb.Receive(ctx, protocol.ChannelServer)
//
// # Thread Safety
//
// All backends and [Mailbox] are safe for concurrent use. The file and redis
// backends are also safe across processes: a claimed envelope is delivered
// to exactly one receiver.
package mailbox
