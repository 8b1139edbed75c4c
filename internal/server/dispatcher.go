package server

import (
	"context"
	"os"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/mailbox"
	"github.com/Iron-Ham/mqfetch/internal/notify"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
	"github.com/Iron-Ham/mqfetch/internal/session"
)

const (
	// cancelWaitTimeout bounds how long shutdown waits for cancelled workers.
	cancelWaitTimeout = 10 * time.Second

	// destroyTimeout bounds mailbox teardown.
	destroyTimeout = 5 * time.Second

	// maxReceiveRetries is how many consecutive transient receive failures
	// the accept loop rides out before giving up.
	maxReceiveRetries = 5
	receiveRetryDelay = 200 * time.Millisecond
)

// Reasons reported when the accept loop ends.
const (
	ReasonStopRequested = "stop requested"
	ReasonInterrupted   = "interrupted"
	ReasonMailboxClosed = "mailbox closed"
	ReasonReceiveFailed = "receive failed"
)

// Config wires a Dispatcher to its collaborators.
type Config struct {
	// Transport is the mailbox the dispatcher created. It is destroyed when
	// Run returns.
	Transport mailbox.Transport

	// Listener delivers out-of-band cancellations. Nil disables them.
	Listener notify.Listener

	// Worker is the template for every session worker. Its Transport
	// defaults to the dispatcher's.
	Worker session.WorkerConfig

	// ShutdownGrace is how long live sessions may keep running after a
	// stop request before they are cancelled.
	ShutdownGrace time.Duration

	// Dir receives the live session snapshot. Empty disables it.
	Dir string

	// Backend names the mailbox backend in the snapshot.
	Backend string

	Bus    *event.Bus
	Logger *logging.Logger
}

// Dispatcher accepts connect requests on the server channel and spawns a
// worker per request without waiting for it.
type Dispatcher struct {
	cfg      Config
	registry *session.Registry
	logger   *logging.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Worker.Transport == nil {
		cfg.Worker.Transport = cfg.Transport
	}
	if cfg.Worker.Logger == nil {
		cfg.Worker.Logger = cfg.Logger
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("dispatcher"),
	}
	d.registry = session.NewRegistry(
		session.WithEventBus(cfg.Bus),
		session.WithRegistryLogger(cfg.Logger),
		session.WithOnChange(d.writeSnapshot),
	)
	return d
}

// Registry returns the live session table.
func (d *Dispatcher) Registry() *session.Registry {
	return d.registry
}

// Run serves connect requests until a StopServer envelope arrives, the
// mailbox is destroyed or ctx is cancelled. A stop request lets live
// sessions finish within the shutdown grace; cancellation of ctx cancels
// them at once. The mailbox is destroyed before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("server started", "pid", os.Getpid(), "backend", d.cfg.Backend)
	d.writeSnapshot(nil)

	// The listener outlives the accept loop so cancels still arrive while
	// sessions finish during the grace period.
	listenCtx, stopListening := context.WithCancel(context.Background())
	var listeners conc.WaitGroup
	if d.cfg.Listener != nil {
		listeners.Go(func() {
			if err := d.cfg.Listener.Listen(listenCtx, d.handleCancel); err != nil {
				d.logger.Warn("cancel listener stopped", "error", err.Error())
			}
		})
	}

	reason, runErr := d.accept(ctx)

	grace := d.cfg.ShutdownGrace
	if reason == ReasonInterrupted {
		grace = 0
	}
	d.shutdown(grace)

	stopListening()
	listeners.Wait()
	d.destroy()

	accepted := d.registry.Accepted()
	d.logger.Info("server stopped", "reason", reason, "accepted", accepted)
	d.publish(event.NewServerStoppedEvent(reason, accepted))
	return runErr
}

// accept is the receive loop on the server channel.
func (d *Dispatcher) accept(ctx context.Context) (string, error) {
	retries := 0
	for {
		env, err := d.cfg.Transport.Receive(ctx, protocol.ChannelServer)
		if err != nil {
			switch {
			case errors.Is(err, errors.ErrMailboxClosed):
				return ReasonMailboxClosed, nil
			case ctx.Err() != nil:
				return ReasonInterrupted, nil
			case errors.IsRetryable(err) && retries < maxReceiveRetries:
				retries++
				d.logger.Warn("receive failed, retrying", "error", err.Error(), "attempt", retries)
				select {
				case <-time.After(receiveRetryDelay):
				case <-ctx.Done():
					return ReasonInterrupted, nil
				}
				continue
			default:
				d.logger.Error("receive failed", "error", err.Error())
				return ReasonReceiveFailed, errors.Wrap(err, "server receive failed")
			}
		}
		retries = 0

		switch env.Kind {
		case protocol.KindConnect:
			d.handleConnect(env)
		case protocol.KindStopServer:
			return ReasonStopRequested, nil
		default:
			d.logger.Warn("unexpected envelope on server channel", "kind", env.Kind.String())
		}
	}
}

// handleConnect spawns a worker for a well-formed connect request.
func (d *Dispatcher) handleConnect(env protocol.Envelope) {
	if err := env.Validate(); err != nil {
		d.logger.Warn("dropping malformed connect request", "error", err.Error())
		return
	}
	req := *env.Connect
	if !req.ReplyChannel.IsSession() {
		d.logger.Warn("dropping connect request",
			"error", errors.ErrReservedChannel.Error(),
			"channel", int64(req.ReplyChannel),
			"requester_id", req.RequesterID,
		)
		d.publish(event.NewRequestDroppedEvent(int64(req.ReplyChannel), errors.ErrReservedChannel))
		return
	}

	cfg := d.cfg.Worker
	info := d.registry.Spawn(req, func(ctx context.Context, id string) session.Result {
		return session.NewWorker(id, req, cfg).Run(ctx)
	})
	d.logger.Info("session accepted",
		"session_id", info.ID,
		"channel", int64(info.Channel),
		"requester_id", req.RequesterID,
	)
}

// handleCancel maps an out-of-band signal to the registry.
func (d *Dispatcher) handleCancel(sessionID string) {
	if err := d.registry.Cancel(sessionID); err != nil {
		d.logger.Debug("cancel ignored", "error", err.Error())
	}
}

// shutdown lets live sessions finish within grace, then cancels the rest.
func (d *Dispatcher) shutdown(grace time.Duration) {
	if d.registry.Len() > 0 && grace > 0 {
		d.logger.Info("waiting for live sessions", "count", d.registry.Len(), "grace", grace.String())
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		err := d.registry.Wait(ctx)
		cancel()
		if err == nil {
			return
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			d.logger.Error("session worker failed", "error", err.Error())
			return
		}
	}

	if n := d.registry.CancelAll(); n > 0 {
		d.logger.Info("cancelling live sessions", "count", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelWaitTimeout)
	defer cancel()
	if err := d.registry.Wait(ctx); err != nil {
		d.logger.Error("sessions did not stop cleanly", "error", err.Error())
	}
}

// destroy tears down the mailbox and the snapshot.
func (d *Dispatcher) destroy() {
	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := d.cfg.Transport.Destroy(ctx); err != nil {
		d.logger.Error("failed to destroy mailbox", "error", err.Error())
	}
	if d.cfg.Dir != "" {
		if err := RemoveSnapshot(d.cfg.Dir); err != nil {
			d.logger.Warn("failed to remove session snapshot", "error", err.Error())
		}
	}
}

func (d *Dispatcher) writeSnapshot(live []session.SessionInfo) {
	if d.cfg.Dir == "" {
		return
	}
	err := WriteSnapshot(d.cfg.Dir, Snapshot{
		PID:       os.Getpid(),
		Backend:   d.cfg.Backend,
		UpdatedAt: time.Now(),
		Accepted:  d.registry.Accepted(),
		Sessions:  live,
	})
	if err != nil {
		d.logger.Warn("failed to write session snapshot", "error", err.Error())
	}
}

func (d *Dispatcher) publish(e event.Event) {
	if d.cfg.Bus != nil {
		d.cfg.Bus.Publish(e)
	}
}
