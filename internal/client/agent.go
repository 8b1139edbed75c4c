// Package client implements the requesting side of a file delivery session.
//
// An [Agent] allocates a reply channel, asks the dispatcher for a resource
// and renders whatever its session worker sends until StopClient arrives.
// The zero-length DataChunk only marks the end of the data; StopClient is
// the one signal that ends the receive loop.
package client

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/mailbox"
	"github.com/Iron-Ham/mqfetch/internal/notify"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// DefaultSignalTimeout bounds the out-of-band cancel.
const DefaultSignalTimeout = time.Second

// Config wires an Agent to its collaborators.
type Config struct {
	// Transport is the mailbox opened from the running server.
	Transport mailbox.Transport

	// Canceller raises out-of-band cancels. Nil disables them.
	Canceller notify.Sender

	// Stdout receives resource bytes and notices verbatim.
	Stdout io.Writer

	// Stderr receives status lines.
	Stderr io.Writer

	// SignalTimeout bounds a cancel. Zero means DefaultSignalTimeout.
	SignalTimeout time.Duration

	// RequesterID identifies this client in server logs. Zero means the pid.
	RequesterID int64

	Logger *logging.Logger
}

// Agent runs one session against the dispatcher.
type Agent struct {
	cfg    Config
	render *Renderer
	logger *logging.Logger

	mu        sync.Mutex
	sessionID string
	received  int64
	endOfData bool
}

// New creates an Agent.
func New(cfg Config) *Agent {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = DefaultSignalTimeout
	}
	if cfg.RequesterID == 0 {
		cfg.RequesterID = int64(os.Getpid())
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	return &Agent{
		cfg:    cfg,
		render: NewRenderer(cfg.Stderr),
		logger: cfg.Logger.WithComponent("client"),
	}
}

// SessionID returns the id announced by the worker, or "" before the handshake.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Received returns the number of resource bytes written so far.
func (a *Agent) Received() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received
}

// Complete reports whether the terminal zero-length chunk arrived, which
// only happens when the whole resource was delivered.
func (a *Agent) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endOfData
}

// Run requests path at the given priority and renders the session. It
// returns nil once StopClient arrives, ErrInterrupted when ctx is cancelled
// and ErrProtocolViolation for envelopes it cannot handle. On interruption
// and violation the worker is cancelled out of band if its id is known.
func (a *Agent) Run(ctx context.Context, priority int, path string) error {
	ch, err := a.cfg.Transport.Allocate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return a.interrupted()
		}
		return errors.Wrap(err, "failed to allocate reply channel")
	}
	a.logger = a.logger.WithChannel(int64(ch))

	req := protocol.ConnectRequest{
		RequesterID:  a.cfg.RequesterID,
		ReplyChannel: ch,
		Priority:     priority,
		ResourcePath: path,
	}
	if err := a.cfg.Transport.Send(ctx, protocol.NewConnect(req)); err != nil {
		if ctx.Err() != nil {
			return a.interrupted()
		}
		return errors.Wrap(err, "failed to send connect request")
	}
	a.logger.Debug("connect request sent", "priority", priority, "path", path)

	for {
		env, err := a.cfg.Transport.Receive(ctx, ch)
		if err != nil {
			if ctx.Err() != nil {
				return a.interrupted()
			}
			if errors.Is(err, errors.ErrMailboxClosed) {
				return errors.Wrap(err, "server shut down during the session")
			}
			return errors.Wrap(err, "receive failed")
		}

		done, err := a.handle(env)
		if err != nil {
			return err
		}
		if done {
			a.logger.Debug("session finished", "bytes", a.Received())
			return nil
		}
	}
}

// handle processes one envelope and reports whether the session is over.
func (a *Agent) handle(env protocol.Envelope) (bool, error) {
	if err := env.Validate(); err != nil {
		return false, a.violation(env, err)
	}

	switch env.Kind {
	case protocol.KindSessionIdentity:
		a.mu.Lock()
		a.sessionID = env.Identity.SessionID
		a.mu.Unlock()
		a.logger.Debug("session identity received", "session_id", env.Identity.SessionID)

	case protocol.KindDataChunk:
		if env.Chunk.EOF() {
			a.mu.Lock()
			a.endOfData = true
			a.mu.Unlock()
			return false, nil
		}
		if _, err := a.cfg.Stdout.Write(env.Chunk.Data); err != nil {
			a.cancelSession()
			return false, errors.Wrap(err, "failed to write output")
		}
		a.mu.Lock()
		a.received += int64(env.Chunk.Length)
		a.mu.Unlock()

	case protocol.KindPrintNotice:
		if _, err := io.WriteString(a.cfg.Stdout, env.Notice.Text); err != nil {
			a.cancelSession()
			return false, errors.Wrap(err, "failed to write output")
		}

	case protocol.KindStopClient:
		return true, nil

	default:
		return false, a.violation(env, errors.NewProtocolError("unexpected envelope", errors.ErrUnknownKind).
			WithKind(env.Kind.String()).WithChannel(int64(env.Channel)))
	}
	return false, nil
}

// violation cancels the worker and reports an envelope the client cannot handle.
func (a *Agent) violation(env protocol.Envelope, cause error) error {
	a.render.Violation(env.Kind.String())
	a.logger.Warn("protocol violation", "kind", env.Kind.String(), "error", cause.Error())
	a.cancelSession()
	return errors.Join(errors.ErrProtocolViolation, cause)
}

// interrupted cancels the worker after a local interrupt.
func (a *Agent) interrupted() error {
	a.cancelSession()
	a.render.Cancelled(a.SessionID())
	return errors.ErrInterrupted
}

// cancelSession signals the worker out of band. It does nothing before the
// handshake because there is no session id to address yet.
func (a *Agent) cancelSession() {
	id := a.SessionID()
	if id == "" || a.cfg.Canceller == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SignalTimeout)
	defer cancel()
	if err := a.cfg.Canceller.Cancel(ctx, id); err != nil {
		a.logger.Warn("failed to cancel session", "session_id", id, "error", err.Error())
		return
	}
	a.logger.Debug("session cancel sent", "session_id", id)
}
