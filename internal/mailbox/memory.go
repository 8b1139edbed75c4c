package mailbox

import (
	"context"
	"sync"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
)

// MemoryTransport keeps envelopes in process memory. It backs tests and
// single-process embedding where server and clients share an address space.
type MemoryTransport struct {
	mu       sync.Mutex
	queues   map[protocol.Channel][]protocol.Envelope
	waiters  map[protocol.Channel]chan struct{}
	next     protocol.Channel
	closed   bool
	closedCh chan struct{}
}

// NewMemoryTransport creates an empty in-memory mailbox.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		queues:   make(map[protocol.Channel][]protocol.Envelope),
		waiters:  make(map[protocol.Channel]chan struct{}),
		next:     protocol.FirstSessionChannel,
		closedCh: make(chan struct{}),
	}
}

// Send appends env to its channel queue and wakes blocked receivers.
func (m *MemoryTransport) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.ErrMailboxClosed
	}
	m.queues[env.Channel] = append(m.queues[env.Channel], env)
	if w, ok := m.waiters[env.Channel]; ok {
		close(w)
		delete(m.waiters, env.Channel)
	}
	return nil
}

// Receive pops the oldest envelope on ch, blocking until one arrives.
func (m *MemoryTransport) Receive(ctx context.Context, ch protocol.Channel) (protocol.Envelope, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return protocol.Envelope{}, errors.ErrMailboxClosed
		}
		if q := m.queues[ch]; len(q) > 0 {
			env := q[0]
			q[0] = protocol.Envelope{}
			if len(q) == 1 {
				delete(m.queues, ch)
			} else {
				m.queues[ch] = q[1:]
			}
			m.mu.Unlock()
			return env, nil
		}
		w, ok := m.waiters[ch]
		if !ok {
			w = make(chan struct{})
			m.waiters[ch] = w
		}
		m.mu.Unlock()

		select {
		case <-w:
		case <-m.closedCh:
		case <-ctx.Done():
			return protocol.Envelope{}, ctx.Err()
		}
	}
}

// Drain drops everything queued on ch.
func (m *MemoryTransport) Drain(_ context.Context, ch protocol.Channel) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.queues[ch])
	delete(m.queues, ch)
	return n, nil
}

// Pending reports the queue length of ch.
func (m *MemoryTransport) Pending(_ context.Context, ch protocol.Channel) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[ch]), nil
}

// Allocate returns the next unused session channel.
func (m *MemoryTransport) Allocate(_ context.Context) (protocol.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errors.ErrMailboxClosed
	}
	ch := m.next
	m.next++
	return ch, nil
}

// Destroy discards all queues and releases blocked receivers.
func (m *MemoryTransport) Destroy(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.queues = make(map[protocol.Channel][]protocol.Envelope)
	close(m.closedCh)
	return nil
}
