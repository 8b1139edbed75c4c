// Package notify carries out-of-band session cancellation from clients to
// the dispatcher.
//
// A cancel must not travel through the mailbox channel it is trying to shut
// down: the worker may be blocked sending on it and the client is no longer
// reading. Instead a client raises a signal keyed by session id and the
// dispatcher, which listens on a separate path, cancels the matching worker.
//
// Two backends are provided. [FileSignal] drops a marker file into a
// directory watched with fsnotify. [RedisSignal] publishes on a redis
// pub/sub channel. Both are at-most-once per marker and idempotent on the
// receiving side: a cancel for an unknown or finished session is ignored by
// the registry.
package notify

import (
	"context"
	"strings"

	"github.com/Iron-Ham/mqfetch/internal/errors"
)

// Sender raises a cancellation for a session.
type Sender interface {
	Cancel(ctx context.Context, sessionID string) error
}

// Listener delivers cancellations to handler until ctx ends. Listen returns
// nil when ctx is cancelled.
type Listener interface {
	Listen(ctx context.Context, handler func(sessionID string)) error
}

// validateID rejects ids that could escape the signal namespace.
func validateID(sessionID string) error {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return errors.NewValidationError("invalid session id").
			WithField("session_id").
			WithValue(sessionID)
	}
	return nil
}
