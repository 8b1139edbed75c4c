package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/mailbox"
	"github.com/Iron-Ham/mqfetch/internal/priority"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// drainTimeout bounds the channel drain after cancellation. The worker's own
// context is already done at that point.
const drainTimeout = 5 * time.Second

// State is a worker's position in the session lifecycle.
type State int32

const (
	StateInitializing State = iota
	StateHandshaking
	StateStreaming
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome is how a session ended.
type Outcome int

const (
	// OutcomeCompleted means the whole resource was streamed.
	OutcomeCompleted Outcome = iota
	// OutcomeRejected means the client was sent a notice and stopped.
	OutcomeRejected
	// OutcomeCancelled means the session was cancelled out of band.
	OutcomeCancelled
	// OutcomeFailed means the mailbox failed under the worker.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes a finished session.
type Result struct {
	Outcome   Outcome
	BytesSent int64
	Err       error
}

// WorkerConfig holds the collaborators shared by every worker.
type WorkerConfig struct {
	Transport mailbox.Transport
	Fs        afero.Fs
	Priority  priority.Setter
	Policy    *Policy
	Logger    *logging.Logger
}

// Worker serves one session. All of its state is private to the session and
// released exactly once when Run returns.
type Worker struct {
	id     string
	req    protocol.ConnectRequest
	tr     mailbox.Transport
	fs     afero.Fs
	prio   priority.Setter
	policy *Policy
	logger *logging.Logger

	state     atomic.Int32
	file      afero.File
	closeOnce sync.Once
	sent      int64
}

// NewWorker creates a worker for req. Missing collaborators default to the
// OS filesystem, the no-op priority setter and the default policy.
func NewWorker(id string, req protocol.ConnectRequest, cfg WorkerConfig) *Worker {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Priority == nil {
		cfg.Priority = priority.Nop()
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	return &Worker{
		id:     id,
		req:    req,
		tr:     cfg.Transport,
		fs:     cfg.Fs,
		prio:   cfg.Priority,
		policy: cfg.Policy,
		logger: cfg.Logger.WithComponent("worker").WithSession(id).WithChannel(int64(req.ReplyChannel)),
	}
}

// ID returns the session id.
func (w *Worker) ID() string {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run serves the session until it completes, is rejected or ctx is
// cancelled. On cancellation the worker sends nothing further and drains
// its channel instead.
func (w *Worker) Run(ctx context.Context) Result {
	defer w.release()

	w.setState(StateInitializing)
	w.logger.Info("connect request",
		"requester_id", w.req.RequesterID,
		"priority", w.req.Priority,
		"path", w.req.ResourcePath,
	)

	if ctx.Err() != nil {
		return w.cancelled()
	}

	if err := w.policy.CheckPriority(w.req.Priority); err != nil {
		return w.reject(ctx, w.policy.invalidPriorityNotice(), err)
	}
	if !w.policy.Allowed(w.req.ResourcePath) {
		return w.reject(ctx, accessDeniedNotice(w.req.ResourcePath), errors.ErrAccessDenied)
	}

	f, err := w.open(ctx)
	if f != nil {
		w.file = f
	}
	if ctx.Err() != nil {
		return w.cancelled()
	}
	if err != nil {
		return w.reject(ctx, openFailedNotice(err), fmt.Errorf("%w: %w", errors.ErrResourceOpen, err))
	}
	// Closing the handle on cancellation unblocks a read stuck on a pipe.
	stop := context.AfterFunc(ctx, w.closeFile)
	defer stop()

	if err := w.prio.Apply(w.req.Priority); err != nil {
		return w.reject(ctx, priorityFailedNotice(err), fmt.Errorf("%w: %w", errors.ErrPriorityApply, err))
	}

	if ctx.Err() != nil {
		return w.cancelled()
	}

	w.setState(StateHandshaking)
	if err := w.send(ctx, protocol.NewIdentity(w.req.ReplyChannel, w.id)); err != nil {
		return w.sendFailed(err)
	}

	w.setState(StateStreaming)
	return w.stream(ctx)
}

// stream sends the resource in chunks, then the terminal zero-length chunk
// and StopClient.
func (w *Worker) stream(ctx context.Context) Result {
	buf := make([]byte, w.policy.chunkSize())
	for {
		if ctx.Err() != nil {
			return w.cancelled()
		}

		n, err := w.read(ctx, buf)
		if ctx.Err() != nil {
			return w.cancelled()
		}
		if n > 0 {
			if sendErr := w.send(ctx, protocol.NewChunk(w.req.ReplyChannel, buf[:n])); sendErr != nil {
				return w.sendFailed(sendErr)
			}
			w.sent += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return w.reject(ctx, readFailedNotice(err), fmt.Errorf("%w: %w", errors.ErrResourceRead, err))
		}
	}

	if err := w.send(ctx, protocol.NewChunk(w.req.ReplyChannel, nil)); err != nil {
		return w.sendFailed(err)
	}
	if err := w.send(ctx, protocol.NewStopClient(w.req.ReplyChannel)); err != nil {
		return w.sendFailed(err)
	}

	w.setState(StateTerminated)
	w.logger.Info("session completed", "bytes_sent", w.sent)
	return Result{Outcome: OutcomeCompleted, BytesSent: w.sent}
}

type openResult struct {
	file afero.File
	err  error
}

// open opens the resource, giving up when ctx ends first. An abandoned
// open has its handle closed once it arrives.
func (w *Worker) open(ctx context.Context) (afero.File, error) {
	done := make(chan openResult, 1)
	go func() {
		f, err := w.fs.Open(w.req.ResourcePath)
		done <- openResult{file: f, err: err}
	}()

	select {
	case res := <-done:
		return res.file, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.file != nil {
				_ = res.file.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

type readResult struct {
	n   int
	err error
}

// read reads into buf until the read returns or ctx ends. After
// cancellation buf may still be written by the abandoned read, so the
// caller must not reuse it.
func (w *Worker) read(ctx context.Context, buf []byte) (int, error) {
	done := make(chan readResult, 1)
	f := w.file
	go func() {
		n, err := f.Read(buf)
		done <- readResult{n: n, err: err}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// reject tells the client why the session cannot be served and stops it.
func (w *Worker) reject(ctx context.Context, notice string, cause error) Result {
	w.logger.Warn("session rejected", "reason", cause.Error())

	if err := w.send(ctx, protocol.NewNotice(w.req.ReplyChannel, notice)); err != nil {
		return w.sendFailed(err)
	}
	if err := w.send(ctx, protocol.NewStopClient(w.req.ReplyChannel)); err != nil {
		return w.sendFailed(err)
	}

	w.setState(StateTerminated)
	return Result{
		Outcome:   OutcomeRejected,
		BytesSent: w.sent,
		Err:       w.sessionError("session rejected", cause),
	}
}

// sendFailed classifies a send error. A send interrupted by cancellation is
// a cancellation, anything else is a mailbox failure.
func (w *Worker) sendFailed(err error) Result {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return w.cancelled()
	}

	w.setState(StateTerminated)
	w.logger.Error("mailbox send failed", "error", err.Error())
	return Result{
		Outcome:   OutcomeFailed,
		BytesSent: w.sent,
		Err:       w.sessionError("mailbox send failed", err),
	}
}

// cancelled discards whatever the departed client left unread.
func (w *Worker) cancelled() Result {
	w.setState(StateDraining)

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	n, err := w.tr.Drain(ctx, w.req.ReplyChannel)
	if err != nil && !errors.Is(err, errors.ErrMailboxClosed) {
		w.logger.Warn("failed to drain channel", "error", err.Error())
	}

	w.setState(StateTerminated)
	w.logger.Info("session cancelled", "bytes_sent", w.sent, "discarded", n)
	return Result{
		Outcome:   OutcomeCancelled,
		BytesSent: w.sent,
		Err:       w.sessionError("session cancelled", errors.ErrSessionCancelled),
	}
}

func (w *Worker) send(ctx context.Context, env protocol.Envelope) error {
	return w.tr.Send(ctx, env)
}

// release closes the resource handle if one was opened.
func (w *Worker) release() {
	if w.file == nil {
		return
	}
	w.closeFile()
}

// closeFile closes the resource handle exactly once. It may run from the
// cancellation callback while a read is still in flight.
func (w *Worker) closeFile() {
	w.closeOnce.Do(func() {
		if err := w.file.Close(); err != nil {
			w.logger.Debug("failed to close resource", "error", err.Error())
		}
	})
}

func (w *Worker) sessionError(msg string, cause error) error {
	return errors.NewSessionError(msg, cause).
		WithSessionID(w.id).
		WithChannel(int64(w.req.ReplyChannel)).
		WithSeverity(severityFor(cause))
}

func severityFor(cause error) errors.Severity {
	if errors.Is(cause, errors.ErrSessionCancelled) {
		return errors.SeverityInfo
	}
	if errors.Is(cause, errors.ErrInvalidPriority) || errors.Is(cause, errors.ErrAccessDenied) {
		return errors.SeverityWarning
	}
	return errors.SeverityError
}
