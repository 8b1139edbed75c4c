package session

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/event"
	"github.com/Iron-Ham/mqfetch/internal/logging"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// SessionInfo describes a live session.
type SessionInfo struct {
	ID           string           `yaml:"id"`
	Channel      protocol.Channel `yaml:"channel"`
	RequesterID  int64            `yaml:"requester_id"`
	Priority     int              `yaml:"priority"`
	ResourcePath string           `yaml:"resource_path"`
	StartedAt    time.Time        `yaml:"started_at"`
	Cancelled    bool             `yaml:"cancelled,omitempty"`
}

// RunFunc serves a session until ctx is cancelled or the session ends.
type RunFunc func(ctx context.Context, sessionID string) Result

type entry struct {
	info   SessionInfo
	cancel context.CancelFunc
}

// Registry maps session ids to running workers. Spawning never waits for a
// worker; the registry only tracks workers so they can be cancelled by id
// and awaited at shutdown.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       conc.WaitGroup
	counter  atomic.Uint64
	accepted atomic.Int64

	bus      *event.Bus
	logger   *logging.Logger
	onChange func([]SessionInfo)
	changeMu sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEventBus publishes session lifecycle events on bus.
func WithEventBus(bus *event.Bus) RegistryOption {
	return func(r *Registry) {
		r.bus = bus
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *logging.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOnChange calls fn with the live sessions after every spawn and exit.
// fn is called without the registry lock held.
func WithOnChange(fn func([]SessionInfo)) RegistryOption {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry")
	return r
}

// Spawn registers a session for req and starts run on its own goroutine.
// The session context is independent of the caller's; it ends when the
// session is cancelled or run returns.
func (r *Registry) Spawn(req protocol.ConnectRequest, run RunFunc) SessionInfo {
	ctx, cancel := context.WithCancel(context.Background())
	info := SessionInfo{
		ID:           r.newID(),
		Channel:      req.ReplyChannel,
		RequesterID:  req.RequesterID,
		Priority:     req.Priority,
		ResourcePath: req.ResourcePath,
		StartedAt:    time.Now(),
	}

	r.mu.Lock()
	r.sessions[info.ID] = &entry{info: info, cancel: cancel}
	r.mu.Unlock()
	r.accepted.Add(1)

	r.logger.Debug("session spawned", "session_id", info.ID, "channel", int64(info.Channel))
	r.publish(event.NewSessionAcceptedEvent(info.ID, int64(info.Channel), info.RequesterID, info.Priority, info.ResourcePath))
	r.changed()

	r.wg.Go(func() {
		// Overwritten on a normal return; a panic leaves the failure in place.
		res := Result{
			Outcome: OutcomeFailed,
			Err:     errors.NewSessionError("worker panicked", nil).WithSessionID(info.ID),
		}
		defer func() { r.finish(info, res) }()
		res = run(ctx, info.ID)
	})
	return info
}

// finish removes the session and reports how it ended.
func (r *Registry) finish(info SessionInfo, res Result) {
	r.mu.Lock()
	if e, ok := r.sessions[info.ID]; ok {
		e.cancel()
		delete(r.sessions, info.ID)
	}
	r.mu.Unlock()

	r.logEnd(info, res)
	r.publish(event.NewSessionEndedEvent(info.ID, int64(info.Channel), res.Outcome.String(), res.BytesSent, res.Err))
	r.changed()
}

// Cancel cancels a live session. Cancelling an already cancelled session
// has no effect; an ended or unknown one returns ErrSessionNotFound.
func (r *Registry) Cancel(sessionID string) error {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	first := ok && !e.info.Cancelled
	if first {
		e.info.Cancelled = true
		e.cancel()
	}
	r.mu.Unlock()

	r.publish(event.NewSessionCancelRequestedEvent(sessionID, ok))
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, sessionID)
	}
	r.logger.Info("session cancel requested", "session_id", sessionID, "first", first)
	if first {
		r.changed()
	}
	return nil
}

// CancelAll cancels every live session and returns how many were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	n := 0
	for _, e := range r.sessions {
		if e.info.Cancelled {
			continue
		}
		e.info.Cancelled = true
		e.cancel()
		n++
	}
	r.mu.Unlock()

	if n > 0 {
		r.logger.Info("cancelled live sessions", "count", n)
		r.changed()
	}
	return n
}

// Live returns the live sessions ordered by start time.
func (r *Registry) Live() []SessionInfo {
	r.mu.Lock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, e := range r.sessions {
		infos = append(infos, e.info)
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Accepted returns how many sessions were spawned over the registry lifetime.
func (r *Registry) Accepted() int {
	return int(r.accepted.Load())
}

// Wait blocks until every spawned worker has returned or ctx ends. A
// worker panic is returned as an error once all workers are done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		if rec := r.wg.WaitAndRecover(); rec != nil {
			done <- rec.AsError()
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logEnd logs a finished session at the level its error calls for. Clean
// completions log at debug.
func (r *Registry) logEnd(info SessionInfo, res Result) {
	args := []any{
		"session_id", info.ID,
		"outcome", res.Outcome.String(),
		"bytes_sent", res.BytesSent,
	}
	if res.Err != nil {
		args = append(args, "error", res.Err.Error())
	}

	switch errors.GetSeverity(res.Err) {
	case errors.SeverityDebug:
		r.logger.Debug("session ended", args...)
	case errors.SeverityInfo:
		r.logger.Info("session ended", args...)
	case errors.SeverityWarning:
		r.logger.Warn("session ended", args...)
	default:
		r.logger.Error("session ended", args...)
	}
}

func (r *Registry) newID() string {
	return fmt.Sprintf("sess-%d-%d-%d", time.Now().UnixNano(), os.Getpid(), r.counter.Add(1))
}

func (r *Registry) publish(e event.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// changed reports the live sessions. Calls are serialized so observers never
// see an older list after a newer one.
func (r *Registry) changed() {
	if r.onChange == nil {
		return
	}
	r.changeMu.Lock()
	defer r.changeMu.Unlock()
	r.onChange(r.Live())
}
