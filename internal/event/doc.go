// Package event provides a pub-sub event bus used to observe session
// lifecycles without coupling the dispatcher, the session registry and the
// mailbox to whoever consumes the events (logs, the sessions snapshot, tests).
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Session lifecycle:
//   - [SessionAcceptedEvent]: a worker was spawned for a connection request
//   - [SessionEndedEvent]: a worker reached its terminal state (once per session)
//   - [SessionCancelRequestedEvent]: an out-of-band cancel was received
//   - [ServerStoppedEvent]: the dispatcher left its accept loop
//
// Mailbox:
//   - [MailboxSentEvent]: an envelope was delivered
//   - [MailboxDrainedEvent]: pending envelopes on a channel were discarded
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called synchronously
// on the publishing goroutine and a panicking handler is recovered, so
// handlers should be quick and must not publish recursively while holding
// their own locks.
package event
