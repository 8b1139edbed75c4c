// Package session implements the server side of a file delivery session.
//
// A [Worker] serves one client. It validates the request against a
// [Policy], opens the resource, applies the requested scheduling priority,
// announces its session id and streams the resource in chunks on the
// client's reply channel:
//
//	SessionIdentity, DataChunk..., DataChunk{len 0}, StopClient
//
// A rejected request produces exactly PrintNotice followed by StopClient.
// StopClient is always the last envelope a worker sends, so clients stop
// reading on it and nothing else.
//
// The [Registry] assigns session ids, runs each worker on its own goroutine
// and cancels workers by id. A cancelled worker sends nothing more, drains
// its reply channel so no orphaned envelopes remain, releases the resource
// and exits.
package session
